package scanning

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// receiptAnalysisPrompt is shared by the vision model providers
const receiptAnalysisPrompt = `You are analyzing a purchase receipt, invoice or bill. Carefully read all text in the image and extract:

1. **Merchant**: the business that issued the receipt (name, phone or email, address).
2. **Payer**: the customer, if printed (name, contact, address).
3. **Purchase date**: in ISO 8601 format (YYYY-MM-DD).
4. **Tax breakdown**: subtotal, tax and total as plain numbers without currency symbols or thousands separators.
5. **Currency**: the ISO 4217 code (e.g. CLP, USD, EUR).
6. **Line items**: description, quantity, unit price and line total for each purchased item.
7. **Keywords**: short lowercase words describing what was bought.
8. **Categories**: %s
9. **Notes**: one sentence describing the purchase.

Return ONLY valid JSON in this exact format:
{
  "merchant": {"name": "Store", "contact": null, "address": null},
  "payer": {"name": null, "contact": null, "address": null},
  "purchaseDate": "YYYY-MM-DD",
  "taxBreakdown": {"subtotal": 0.00, "tax": 0.00, "total": 0.00},
  "currencyCode": "USD",
  "lineItems": [{"description": "Item", "quantity": 1, "unitPrice": 0.00, "total": 0.00}],
  "keywords": ["word"],
  "categories": ["category"],
  "notes": "Short description",
  "aiSummary": "Short summary"
}

Important:
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const answerSystemPrompt = "Eres un asistente financiero que responde en español con resúmenes claros y cálidos. Usa solo las boletas proporcionadas para responder."

// zeroDecimalCurrencies are formatted without minor units
var zeroDecimalCurrencies = map[string]bool{
	"CLP": true, "JPY": true, "KRW": true, "PYG": true, "ISK": true, "VND": true, "UYI": true,
}

// buildAnalysisPrompt completes the shared prompt with the category vocabulary and capture context
func buildAnalysisPrompt(categories []string, hint string, location *Geolocation) string {
	categoryLine := "one or more short lowercase category names describing the purchase."
	if len(categories) > 0 {
		categoryLine = "one or more of: " + strings.Join(categories, ", ") + "."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(receiptAnalysisPrompt, categoryLine))
	if hint = strings.TrimSpace(hint); hint != "" {
		b.WriteString("\n\nThe user described this receipt as: ")
		b.WriteString(hint)
	}
	if location != nil {
		b.WriteString(fmt.Sprintf("\n\nThe receipt was captured at latitude %.5f, longitude %.5f.", location.Latitude, location.Longitude))
	}
	return b.String()
}

// buildQuestionPrompt returns the user message embedding one digest line per receipt
func buildQuestionPrompt(query string, receipts []ReceiptDigest) string {
	lines := make([]string, 0, len(receipts)+1)
	lines = append(lines, "Consulta: "+query)
	for _, r := range receipts {
		lines = append(lines, digestLine(r))
	}
	return strings.Join(lines, "\n")
}

func digestLine(r ReceiptDigest) string {
	purchaseDate := "desconocida"
	if r.PurchaseDate != nil {
		purchaseDate = r.PurchaseDate.Format(time.RFC3339)
	}
	total := "-"
	if r.Total != nil {
		total = r.Total.String()
	}
	return fmt.Sprintf("Boleta #%s | Comercio: %s | Fecha: %s | Total: %s %s | Categorías: %s | Palabras clave: %s | Notas: %s",
		r.ID,
		orDash(r.Merchant),
		purchaseDate,
		total,
		r.Currency,
		strings.Join(r.Categories, ", "),
		strings.Join(r.Keywords, ", "),
		orDash(r.Notes),
	)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// FormatAmount renders an amount with its currency code
func FormatAmount(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	places := int32(2)
	if zeroDecimalCurrencies[currency] {
		places = 0
	}
	if currency == "" {
		return amount.StringFixed(places)
	}
	return currency + " " + amount.StringFixed(places)
}
