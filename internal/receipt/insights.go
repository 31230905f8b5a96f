package receipt

import (
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/scanning"
)

// DefaultTopKeywords is how many keywords Insights reports
const DefaultTopKeywords = 25

// CategoryTotal is the spend grouped under one category
type CategoryTotal struct {
	Category Category        `json:"category"`
	Label    string          `json:"label"`
	Total    decimal.Decimal `json:"total"`
}

// Insights are the aggregates shown over the whole collection
type Insights struct {
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	CategoryTotals []CategoryTotal `json:"categoryTotals"`
	TopKeywords    []string        `json:"topKeywords"`
}

// TotalSpent sums the effective totals, skipping receipts without one
func TotalSpent(receipts []*Receipt) decimal.Decimal {
	total := decimal.Zero
	for _, r := range receipts {
		if t, ok := r.EffectiveTotal(); ok {
			total = total.Add(t)
		}
	}
	return total
}

// CategoryTotals groups spend by each receipt's first category, largest first
func CategoryTotals(receipts []*Receipt) []CategoryTotal {
	sums := make(map[Category]decimal.Decimal)
	for _, r := range receipts {
		c := CategoryOther
		if len(r.Categories) > 0 {
			c = r.Categories[0]
		}
		t, _ := r.EffectiveTotal()
		sums[c] = sums[c].Add(t)
	}

	totals := make([]CategoryTotal, 0, len(sums))
	for c, t := range sums {
		totals = append(totals, CategoryTotal{Category: c, Label: c.Label(), Total: t})
	}
	slices.SortFunc(totals, func(a, b CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return a.Category.Rank() - b.Category.Rank()
	})
	return totals
}

// TopKeywords returns the n most frequent keywords, ties broken alphabetically
func TopKeywords(receipts []*Receipt, n int) []string {
	counts := make(map[string]int)
	for _, r := range receipts {
		for _, k := range r.Keywords {
			counts[k]++
		}
	}

	keywords := make([]string, 0, len(counts))
	for k := range counts {
		keywords = append(keywords, k)
	}
	slices.SortFunc(keywords, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	if n >= 0 && len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

// Search returns the receipts whose merchant, keywords and notes contain
// every token of query. An empty query matches everything.
func Search(receipts []*Receipt, query string) []*Receipt {
	tokens := scanning.Tokenize(query)
	if len(tokens) == 0 {
		return receipts
	}

	matched := make([]*Receipt, 0)
	for _, r := range receipts {
		haystack := searchText(r)
		if containsAll(haystack, tokens) {
			matched = append(matched, r)
		}
	}
	return matched
}

func searchText(r *Receipt) string {
	parts := make([]string, 0, len(r.Keywords)+2)
	parts = append(parts, r.MerchantName())
	parts = append(parts, r.Keywords...)
	if r.Notes != nil {
		parts = append(parts, *r.Notes)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAll(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// ComputeInsights bundles the aggregates
func ComputeInsights(receipts []*Receipt) Insights {
	return Insights{
		TotalSpent:     TotalSpent(receipts),
		CategoryTotals: CategoryTotals(receipts),
		TopKeywords:    TopKeywords(receipts, DefaultTopKeywords),
	}
}

// Snapshotter is a versioned receipt collection
type Snapshotter interface {
	List() []*Receipt
	Version() uint64
}

// InsightTracker caches insights until the collection changes
type InsightTracker struct {
	mu       sync.Mutex
	computed bool
	version  uint64
	insights Insights
}

// Current returns the insights for src, recomputing only when its version moved
func (t *InsightTracker) Current(src Snapshotter) Insights {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := src.Version()
	if !t.computed || v != t.version {
		t.insights = ComputeInsights(src.List())
		t.version = v
		t.computed = true
	}
	return t.insights
}
