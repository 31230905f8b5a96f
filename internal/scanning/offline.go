package scanning

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
)

const (
	offlineMerchant = "Comercio desconocido"
	offlineSummary  = "Boleta capturada sin análisis IA en modo sin conexión"
)

// offlineCategoryHints maps keyword substrings to category names
var offlineCategoryHints = []struct {
	pattern  string
	category string
}{
	{"medic", "health"},
	{"salud", "health"},
	{"doctor", "health"},
	{"super", "groceries"},
	{"comida", "dining"},
	{"arriendo", "rent"},
	{"ocio", "entertainment"},
}

// Offline implements the Analyzer interface with local heuristics only.
// It never fails and never touches the network.
type Offline struct {
	currency string
	now      func() time.Time
}

// NewOffline creates an Offline analyzer reporting amounts in the given currency
func NewOffline(currency string) *Offline {
	return &Offline{
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		now:      time.Now,
	}
}

// Analyze derives keywords and categories from the user's hint
func (o *Offline) Analyze(_ context.Context, _ []byte, _ media.Kind, hint string, _ *Geolocation) (*Analysis, error) {
	keywords := Tokenize(hint)
	merchant := offlineMerchant
	summary := offlineSummary
	now := o.now()

	a := &Analysis{
		Merchant:     Party{Name: &merchant},
		PurchaseDate: &now,
		CurrencyCode: o.currency,
		Keywords:     keywords,
		Categories:   inferCategories(keywords),
		Summary:      &summary,
	}
	if h := strings.TrimSpace(hint); h != "" {
		a.Notes = &h
	}
	return a, nil
}

// AnswerQuestion sums the matching receipts and lists them, without any language generation
func (o *Offline) AnswerQuestion(_ context.Context, _ string, receipts []ReceiptDigest) (string, error) {
	total := decimal.Zero
	currency := o.currency
	if len(receipts) > 0 && receipts[0].Currency != "" {
		currency = receipts[0].Currency
	}

	titles := make([]string, 0, len(receipts))
	for _, r := range receipts {
		if r.Total != nil {
			total = total.Add(*r.Total)
		}
		merchant := r.Merchant
		if strings.TrimSpace(merchant) == "" {
			merchant = "Comercio"
		}
		date := "fecha desconocida"
		if r.PurchaseDate != nil {
			date = r.PurchaseDate.Format("2006-01-02")
		}
		titles = append(titles, "• "+merchant+" - "+date)
	}

	return strings.Join([]string{
		"Resumen sin conexión",
		"Total estimado: " + FormatAmount(total, currency),
		"Coincidencias: \n" + strings.Join(titles, "\n"),
	}, "\n\n"), nil
}

// Close is a no-op
func (o *Offline) Close() error {
	return nil
}

// Tokenize lower-cases text and splits it on every non-alphanumeric rune
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func inferCategories(keywords []string) []string {
	var matched []string
	seen := make(map[string]bool)
	for _, keyword := range keywords {
		for _, hint := range offlineCategoryHints {
			if strings.Contains(keyword, hint.pattern) && !seen[hint.category] {
				seen[hint.category] = true
				matched = append(matched, hint.category)
			}
		}
	}
	if len(matched) == 0 {
		matched = append(matched, "other")
	}
	return matched
}
