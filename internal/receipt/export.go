package receipt

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Boletas"

var exportHeaders = []string{
	"Fecha",
	"Comercio",
	"Categorías",
	"Total",
	"Moneda",
	"Palabras clave",
	"Notas",
	"Archivo",
}

var exportColumnWidths = []struct {
	from, to string
	width    float64
}{
	{"A", "A", 12}, // date
	{"B", "C", 28},
	{"D", "E", 12},
	{"F", "G", 48},
	{"H", "H", 60}, // file
}

// ExportXLSX renders the receipts as a workbook with one row per receipt.
// Totals are written as text holding the exact decimal amount.
func ExportXLSX(receipts []*Receipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := writeExportRow(f, 1, header); err != nil {
		return nil, err
	}

	for i, r := range receipts {
		row := make([]any, len(exportHeaders))
		if r.PurchaseDate != nil {
			row[0] = r.PurchaseDate.Format("2006-01-02")
		}
		row[1] = r.MerchantName()

		labels := make([]string, 0, len(r.Categories))
		for _, c := range r.Categories {
			labels = append(labels, c.Label())
		}
		row[2] = strings.Join(labels, ", ")

		if total, ok := r.EffectiveTotal(); ok {
			row[3] = total.String()
		}
		row[4] = r.CurrencyCode
		row[5] = strings.Join(r.Keywords, ", ")
		if r.Notes != nil {
			row[6] = *r.Notes
		}
		row[7] = r.FileName

		if err := writeExportRow(f, i+2, row); err != nil {
			return nil, err
		}
	}

	for _, c := range exportColumnWidths {
		if err := f.SetColWidth(exportSheet, c.from, c.to, c.width); err != nil {
			return nil, fmt.Errorf("setting column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// writeExportRow writes values from column A, skipping nil ones
func writeExportRow(f *excelize.File, row int, values []any) error {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, v); err != nil {
			return fmt.Errorf("writing %s: %w", cell, err)
		}
	}
	return nil
}
