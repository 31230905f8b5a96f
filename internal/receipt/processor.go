package receipt

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/ahorro/internal/media"
	"github.com/zombor/ahorro/internal/scanning"
)

// IDGenerator generates unique IDs for receipts and line items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Input is a single capture to process
type Input struct {
	Data         []byte
	Kind         media.Kind
	OriginalName string
	Hint         string
	Location     *Geolocation
}

// Processed is a receipt ready to be persisted together with its payload and thumbnail
type Processed struct {
	Receipt   *Receipt
	Payload   []byte
	Thumbnail image.Image
}

// Processor turns a capture into a categorized receipt. It never touches the store.
type Processor struct {
	analyzer        scanning.Analyzer
	thumbnailer     media.Thumbnailer
	defaultCurrency string
	idGenerator     IDGenerator
	timeSource      TimeSource
	logger          *slog.Logger
}

// NewProcessor creates a Processor with default ID generator and time source
func NewProcessor(analyzer scanning.Analyzer, thumbnailer media.Thumbnailer, defaultCurrency string) *Processor {
	return NewProcessorWithDeps(analyzer, thumbnailer, defaultCurrency, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewProcessorWithDeps creates a Processor with custom dependencies for testing
func NewProcessorWithDeps(analyzer scanning.Analyzer, thumbnailer media.Thumbnailer, defaultCurrency string, idGen IDGenerator, timeSrc TimeSource) *Processor {
	return &Processor{
		analyzer:        analyzer,
		thumbnailer:     thumbnailer,
		defaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
		idGenerator:     idGen,
		timeSource:      timeSrc,
		logger:          slog.Default(),
	}
}

// Process analyzes the capture and builds the receipt, its normalized payload and its thumbnail.
// Analysis errors abort processing and are returned wrapped.
func (p *Processor) Process(ctx context.Context, in Input) (*Processed, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("unsupported media kind %q", in.Kind)
	}

	analysis, err := p.analyzer.Analyze(ctx, in.Data, in.Kind, in.Hint, in.Location)
	if err != nil {
		p.logger.Error("Failed to analyze receipt",
			"filename", in.OriginalName,
			"media_kind", in.Kind,
			"file_size", len(in.Data),
			"error", err,
		)
		return nil, fmt.Errorf("analyzing receipt: %w", err)
	}

	var (
		payload   []byte
		thumbnail image.Image
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		normalized, err := media.Normalize(in.Data, in.Kind)
		if err != nil {
			p.logger.Debug("Storing payload unnormalized", "filename", in.OriginalName, "error", err)
		}
		payload = normalized
		return nil
	})
	g.Go(func() error {
		if p.thumbnailer != nil {
			thumbnail = p.thumbnailer.Thumbnail(gctx, in.Data, in.Kind)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Processed{
		Receipt:   p.buildReceipt(analysis, in),
		Payload:   payload,
		Thumbnail: thumbnail,
	}, nil
}

func (p *Processor) buildReceipt(a *scanning.Analysis, in Input) *Receipt {
	id := p.idGenerator.Generate()

	currency := strings.ToUpper(strings.TrimSpace(a.CurrencyCode))
	if currency == "" {
		currency = p.defaultCurrency
	}

	notes := a.Notes
	if notes == nil {
		notes = a.Summary
	}

	lineItems := make([]LineItem, 0, len(a.LineItems))
	for _, item := range a.LineItems {
		lineItems = append(lineItems, LineItem{
			ID:          p.idGenerator.Generate(),
			Description: item.Description,
			Quantity:    clonePtr(item.Quantity),
			UnitPrice:   clonePtr(item.UnitPrice),
			Total:       clonePtr(item.Total),
		})
	}

	r := &Receipt{
		ID:           id,
		CreatedAt:    p.timeSource.Now(),
		PurchaseDate: clonePtr(a.PurchaseDate),
		Merchant:     cloneParty(a.Merchant),
		Payer:        cloneParty(a.Payer),
		TaxBreakdown: TaxBreakdown{
			Subtotal: clonePtr(a.TaxBreakdown.Subtotal),
			Tax:      clonePtr(a.TaxBreakdown.Tax),
			Total:    clonePtr(a.TaxBreakdown.Total),
		},
		CurrencyCode: currency,
		LineItems:    lineItems,
		Keywords:     EnrichKeywords(a.Keywords, in.Hint),
		Categories:   MapCategories(a.Categories),
		MediaKind:    in.Kind,
		FileName:     fileNameFor(id, in.OriginalName, in.Kind),
		Notes:        clonePtr(notes),
		Location:     clonePtr(in.Location),
	}
	if hint := strings.TrimSpace(in.Hint); hint != "" {
		r.UserDescription = &hint
	}
	return r
}
