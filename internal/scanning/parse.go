package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

const analysisSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "$defs": {
    "text": {"type": ["string", "null"]},
    "money": {"type": ["number", "string", "null"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"},
    "party": {
      "type": ["object", "null"],
      "properties": {
        "name": {"$ref": "#/$defs/text"},
        "contact": {"$ref": "#/$defs/text"},
        "address": {"$ref": "#/$defs/text"}
      }
    },
    "words": {"type": ["array", "null"], "items": {"type": "string"}}
  },
  "properties": {
    "merchant": {"$ref": "#/$defs/party"},
    "payer": {"$ref": "#/$defs/party"},
    "purchaseDate": {"$ref": "#/$defs/text"},
    "taxBreakdown": {
      "type": ["object", "null"],
      "properties": {
        "subtotal": {"$ref": "#/$defs/money"},
        "tax": {"$ref": "#/$defs/money"},
        "total": {"$ref": "#/$defs/money"}
      }
    },
    "currencyCode": {"$ref": "#/$defs/text"},
    "keywords": {"$ref": "#/$defs/words"},
    "categories": {"$ref": "#/$defs/words"},
    "lineItems": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string"},
          "quantity": {"type": ["number", "null"]},
          "unitPrice": {"$ref": "#/$defs/money"},
          "total": {"$ref": "#/$defs/money"}
        }
      }
    },
    "notes": {"$ref": "#/$defs/text"},
    "aiSummary": {"$ref": "#/$defs/text"}
  }
}`

var analysisSchema = jsonschema.MustCompileString("analysis.json", analysisSchemaJSON)

// dateFormats are tried in order when a purchase date is not RFC 3339
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
}

// wireAnalysis is the JSON shape returned by the analysis endpoint and by the vision model prompts
type wireAnalysis struct {
	Merchant     *Party        `json:"merchant"`
	Payer        *Party        `json:"payer"`
	PurchaseDate *string       `json:"purchaseDate"`
	TaxBreakdown *TaxBreakdown `json:"taxBreakdown"`
	CurrencyCode *string       `json:"currencyCode"`
	Keywords     []string      `json:"keywords"`
	Categories   []string      `json:"categories"`
	LineItems    []LineItem    `json:"lineItems"`
	Notes        *string       `json:"notes"`
	AISummary    *string       `json:"aiSummary"`
}

// parseAnalysis validates and decodes a JSON analysis document
func parseAnalysis(body []byte) (*Analysis, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedResponse)
	}

	// Numbers stay json.Number so money never passes through float64
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrDecodingFailed)
	}
	doc = sanitizeMoney(doc)
	if err := analysisSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}

	sanitized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}
	var wire wireAnalysis
	if err := json.Unmarshal(sanitized, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}

	return wire.toAnalysis(), nil
}

// parseAnalysisText extracts the JSON object from a free-text model reply
func parseAnalysisText(text string) (*Analysis, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrUnexpectedResponse)
	}

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrDecodingFailed)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("%w: invalid JSON object in response", ErrDecodingFailed)
	}

	return parseAnalysis([]byte(text[startIdx : endIdx+1]))
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func (w *wireAnalysis) toAnalysis() *Analysis {
	a := &Analysis{
		PurchaseDate: parseDate(w.PurchaseDate),
		Keywords:     w.Keywords,
		Categories:   w.Categories,
		Notes:        trimmed(w.Notes),
		Summary:      trimmed(w.AISummary),
	}
	if w.Merchant != nil {
		a.Merchant = cleanParty(*w.Merchant)
	}
	if w.Payer != nil {
		a.Payer = cleanParty(*w.Payer)
	}
	if w.TaxBreakdown != nil {
		a.TaxBreakdown = *w.TaxBreakdown
	}
	if w.CurrencyCode != nil {
		a.CurrencyCode = strings.ToUpper(strings.TrimSpace(*w.CurrencyCode))
	}
	for _, item := range w.LineItems {
		item.Description = strings.TrimSpace(item.Description)
		if item.Description == "" {
			continue
		}
		a.LineItems = append(a.LineItems, item)
	}
	return a
}

func parseDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return &t
		}
	}
	return nil
}

func cleanParty(p Party) Party {
	return Party{
		Name:    trimmed(p.Name),
		Contact: trimmed(p.Contact),
		Address: trimmed(p.Address),
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// sanitizeMoney rewrites money values as plain decimal strings so the schema
// sees one format. Empty or ambiguous strings become null.
func sanitizeMoney(doc any) any {
	root, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	if tb, ok := root["taxBreakdown"].(map[string]any); ok {
		for _, k := range []string{"subtotal", "tax", "total"} {
			coerceMoney(tb, k)
		}
	}
	if items, ok := root["lineItems"].([]any); ok {
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				coerceMoney(m, "unitPrice")
				coerceMoney(m, "total")
			}
		}
	}
	return root
}

func coerceMoney(m map[string]any, key string) {
	switch v := m[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return
		}
		m[key] = d.String()
	case string:
		s, ok := normalizeMoney(v)
		if !ok {
			m[key] = nil
			return
		}
		m[key] = s
	}
}

// normalizeMoney turns a printed amount such as "$11.900", "1.190,50" or
// "USD 1,190.50" into a plain decimal string. When both separators appear
// the last one is the decimal mark. A lone separator followed by exactly
// three digits, or repeated, is grouping; one followed by one or two digits
// is the decimal mark. Anything else is ambiguous and reported as !ok.
func normalizeMoney(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return "", false
	}

	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		mark, group := ".", ","
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			mark, group = ",", "."
		}
		if strings.Count(s, mark) > 1 {
			return "", false
		}
		s = strings.ReplaceAll(s, group, "")
		s = strings.Replace(s, mark, ".", 1)
	case dots+commas > 1:
		sep := "."
		if commas > 0 {
			sep = ","
		}
		s = strings.ReplaceAll(s, sep, "")
	case dots+commas == 1:
		sep := "."
		if commas == 1 {
			sep = ","
		}
		switch len(s) - strings.LastIndex(s, sep) - 1 {
		case 3:
			s = strings.Replace(s, sep, "", 1)
		case 1, 2:
			s = strings.Replace(s, sep, ".", 1)
		default:
			return "", false
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", false
	}
	return d.String(), true
}
