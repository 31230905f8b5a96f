package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ahorro/internal/media"
	"github.com/zombor/ahorro/internal/scanning"
)

// Party, TaxBreakdown and Geolocation are shared with the analysis results
type (
	Party        = scanning.Party
	TaxBreakdown = scanning.TaxBreakdown
	Geolocation  = scanning.Geolocation
)

// LineItem is a single purchased item on a receipt
type LineItem struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Quantity    *float64         `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
}

// Receipt is a captured, analyzed and stored receipt
type Receipt struct {
	ID              string       `json:"id"`
	CreatedAt       time.Time    `json:"createdAt"`
	PurchaseDate    *time.Time   `json:"purchaseDate,omitempty"`
	Merchant        Party        `json:"merchant"`
	Payer           Party        `json:"payer"`
	TaxBreakdown    TaxBreakdown `json:"taxBreakdown"`
	CurrencyCode    string       `json:"currencyCode"`
	LineItems       []LineItem   `json:"lineItems"`
	Keywords        []string     `json:"keywords"`
	Categories      []Category   `json:"categories"`
	MediaKind       media.Kind   `json:"mediaKind"`
	FileName        string       `json:"fileName"`
	FilePath        string       `json:"filePath"`
	ThumbnailPath   string       `json:"thumbnailPath,omitempty"`
	UserDescription *string      `json:"userDescription,omitempty"`
	Notes           *string      `json:"notes,omitempty"`
	Location        *Geolocation `json:"location,omitempty"`
}

// EffectiveTotal returns the explicit total, else subtotal plus tax, else the
// sum of the line item totals. ok is false when none of those is known.
func (r *Receipt) EffectiveTotal() (total decimal.Decimal, ok bool) {
	tb := r.TaxBreakdown
	if tb.Total != nil {
		return *tb.Total, true
	}
	if tb.Subtotal != nil && tb.Tax != nil {
		return tb.Subtotal.Add(*tb.Tax), true
	}

	sum := decimal.Zero
	for _, item := range r.LineItems {
		if item.Total != nil {
			sum = sum.Add(*item.Total)
			ok = true
		}
	}
	return sum, ok
}

// SortDate is the date receipts are ordered by: the purchase date when known, else the creation time
func (r *Receipt) SortDate() time.Time {
	if r.PurchaseDate != nil {
		return *r.PurchaseDate
	}
	return r.CreatedAt
}

// MerchantName returns the merchant name or an empty string
func (r *Receipt) MerchantName() string {
	if r.Merchant.Name == nil {
		return ""
	}
	return *r.Merchant.Name
}

// Clone returns a deep copy so callers never share state with the store
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	c := *r
	c.PurchaseDate = clonePtr(r.PurchaseDate)
	c.Merchant = cloneParty(r.Merchant)
	c.Payer = cloneParty(r.Payer)
	c.TaxBreakdown = TaxBreakdown{
		Subtotal: clonePtr(r.TaxBreakdown.Subtotal),
		Tax:      clonePtr(r.TaxBreakdown.Tax),
		Total:    clonePtr(r.TaxBreakdown.Total),
	}
	if r.LineItems != nil {
		c.LineItems = make([]LineItem, len(r.LineItems))
		for i, item := range r.LineItems {
			item.Quantity = clonePtr(item.Quantity)
			item.UnitPrice = clonePtr(item.UnitPrice)
			item.Total = clonePtr(item.Total)
			c.LineItems[i] = item
		}
	}
	if r.Keywords != nil {
		c.Keywords = append([]string(nil), r.Keywords...)
	}
	if r.Categories != nil {
		c.Categories = append([]Category(nil), r.Categories...)
	}
	c.UserDescription = clonePtr(r.UserDescription)
	c.Notes = clonePtr(r.Notes)
	c.Location = clonePtr(r.Location)
	return &c
}

// Digest summarizes the receipt for question answering
func (r *Receipt) Digest() scanning.ReceiptDigest {
	d := scanning.ReceiptDigest{
		ID:           r.ID,
		Merchant:     r.MerchantName(),
		PurchaseDate: clonePtr(r.PurchaseDate),
		Currency:     r.CurrencyCode,
		Keywords:     append([]string(nil), r.Keywords...),
	}
	if total, ok := r.EffectiveTotal(); ok {
		d.Total = &total
	}
	for _, c := range r.Categories {
		d.Categories = append(d.Categories, c.Label())
	}
	if r.Notes != nil {
		d.Notes = *r.Notes
	}
	return d
}

func cloneParty(p Party) Party {
	return Party{
		Name:    clonePtr(p.Name),
		Contact: clonePtr(p.Contact),
		Address: clonePtr(p.Address),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
