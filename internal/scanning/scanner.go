package scanning

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
)

// Party is a merchant or payer as printed on a receipt
type Party struct {
	Name    *string `json:"name,omitempty"`
	Contact *string `json:"contact,omitempty"`
	Address *string `json:"address,omitempty"`
}

// TaxBreakdown holds the monetary summary of a receipt
type TaxBreakdown struct {
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
	Tax      *decimal.Decimal `json:"tax,omitempty"`
	Total    *decimal.Decimal `json:"total,omitempty"`
}

// Geolocation is where a receipt was captured
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LineItem is a single purchased item returned by an analysis
type LineItem struct {
	Description string           `json:"description"`
	Quantity    *float64         `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
}

// Analysis contains the structured data extracted from a receipt.
// Categories are free text and have not been matched to any vocabulary yet.
type Analysis struct {
	Merchant     Party
	Payer        Party
	PurchaseDate *time.Time
	TaxBreakdown TaxBreakdown
	CurrencyCode string
	Keywords     []string
	Categories   []string
	LineItems    []LineItem
	Notes        *string
	Summary      *string
}

// ReceiptDigest is the per-receipt context used to answer questions
type ReceiptDigest struct {
	ID           string
	Merchant     string
	PurchaseDate *time.Time
	Total        *decimal.Decimal
	Currency     string
	Categories   []string
	Keywords     []string
	Notes        string
}

// Answerer answers natural-language questions about a set of receipts
type Answerer interface {
	AnswerQuestion(ctx context.Context, query string, receipts []ReceiptDigest) (string, error)
}

// Analyzer defines the interface for receipt analysis operations
type Analyzer interface {
	// Analyze extracts structured data from a receipt image or PDF
	Analyze(ctx context.Context, data []byte, kind media.Kind, hint string, location *Geolocation) (*Analysis, error)
	Answerer
	// Close releases resources held by the analyzer
	Close() error
}
