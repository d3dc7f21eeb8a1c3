package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-index/internal/extraction"
)

// Format is an output file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Invoices"

// Columns is the header row of every export
var Columns = []string{
	"source",
	"supplier",
	"vat_number",
	"invoice_number",
	"period_start",
	"period_end",
	"billing_id",
	"domain",
	"subtotal",
	"vat",
	"total",
	"status",
	"missing_fields",
	"warnings",
	"error",
}

// amountColumns are written as numbers in spreadsheets
var amountColumns = map[int]func(extraction.InvoiceRecord) decimal.NullDecimal{
	8:  func(r extraction.InvoiceRecord) decimal.NullDecimal { return r.Subtotal },
	9:  func(r extraction.InvoiceRecord) decimal.NullDecimal { return r.VAT },
	10: func(r extraction.InvoiceRecord) decimal.NullDecimal { return r.Total },
}

// ParseFormat converts a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown export format: %s", s)
}

// FormatFromPath picks the format from a file extension, defaulting to CSV
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// ContentType is the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Row renders one record as strings in column order. Absent values are empty.
func Row(rec extraction.InvoiceRecord) []string {
	missing := make([]string, len(rec.MissingFields))
	for i, f := range rec.MissingFields {
		missing[i] = string(f)
	}

	return []string{
		rec.Source,
		rec.Supplier,
		rec.VATNumber,
		rec.InvoiceNumber,
		date(rec.PeriodStart),
		date(rec.PeriodEnd),
		rec.BillingID,
		rec.Domain,
		amount(rec.Subtotal),
		amount(rec.VAT),
		amount(rec.Total),
		string(rec.Status),
		strings.Join(missing, ";"),
		strings.Join(rec.Warnings, ";"),
		rec.Error,
	}
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func amount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// Write exports records in the given format
func Write(w io.Writer, format Format, records []extraction.InvoiceRecord) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	}
	return fmt.Errorf("unknown export format: %s", format)
}

// WriteCSV writes a header row and one row per record
func WriteCSV(w io.Writer, records []extraction.InvoiceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// WriteXLSX writes an "Invoices" workbook with amounts as numeric cells
func WriteXLSX(w io.Writer, records []extraction.InvoiceRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return fmt.Errorf("finding sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for r, rec := range records {
		row := r + 2
		for c, value := range Row(rec) {
			var err error
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			if get, ok := amountColumns[c]; ok {
				if d := get(rec); d.Valid {
					err = f.SetCellFloat(sheetName, cell, d.Decimal.InexactFloat64(), 2, 64)
				}
			} else if value != "" {
				err = f.SetCellStr(sheetName, cell, value)
			}
			if err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 40) // source
	_ = f.SetColWidth(sheetName, "B", "B", 28) // supplier
	_ = f.SetColWidth(sheetName, "C", "H", 18)
	_ = f.SetColWidth(sheetName, "I", "K", 12) // amounts
	_ = f.SetColWidth(sheetName, "L", "L", 10)
	_ = f.SetColWidth(sheetName, "M", "O", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
