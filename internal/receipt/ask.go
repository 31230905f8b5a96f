package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zombor/ahorro/internal/scanning"
)

var (
	// ErrEmptyQuery means the question was blank
	ErrEmptyQuery = errors.New("query is empty")
	// ErrStaleQuery means a newer question started before this one finished
	ErrStaleQuery = errors.New("query superseded by a newer one")
)

// Asker answers natural-language questions about the stored receipts. Only
// the most recent question is answered; starting a new one cancels the
// previous call.
type Asker struct {
	source   Snapshotter
	answerer scanning.Answerer

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewAsker creates an Asker over the given collection
func NewAsker(source Snapshotter, answerer scanning.Answerer) *Asker {
	return &Asker{source: source, answerer: answerer}
}

// Ask filters receipts matching the query and hands their digests to the answerer
func (a *Asker) Ask(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	ctx, seq := a.begin(ctx)
	defer a.finish(seq)

	matched := Search(a.source.List(), query)
	digests := make([]scanning.ReceiptDigest, 0, len(matched))
	for _, r := range matched {
		digests = append(digests, r.Digest())
	}

	answer, err := a.answerer.AnswerQuestion(ctx, query, digests)
	if !a.isLatest(seq) {
		return "", ErrStaleQuery
	}
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	return answer, nil
}

func (a *Asker) begin(parent context.Context) (context.Context, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	a.seq++
	a.cancel = cancel
	return ctx, a.seq
}

func (a *Asker) finish(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seq == seq && a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *Asker) isLatest(seq uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq == seq
}
