package extraction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// WarningInconsistentTotals marks a record whose subtotal and vat do not add up to its total
	WarningInconsistentTotals = "inconsistent totals: subtotal + vat != total"
	// WarningPeriodOrder marks a record whose billing period ends before it starts
	WarningPeriodOrder = "period_end is before period_start"
)

// DefaultRequired are the fields every useful record must carry
var DefaultRequired = []Field{FieldInvoiceNumber, FieldTotal, FieldSupplier}

// DefaultTolerance is the allowed rounding gap between subtotal + vat and total
var DefaultTolerance = decimal.New(1, -2)

// Validator turns typed fields into a classified record
type Validator struct {
	required  []Field
	tolerance decimal.Decimal
}

// NewValidator creates a Validator. A nil required list uses DefaultRequired.
func NewValidator(required []Field, tolerance decimal.Decimal) *Validator {
	if required == nil {
		required = DefaultRequired
	}
	return &Validator{
		required:  required,
		tolerance: tolerance.Abs(),
	}
}

// Validate builds the record for one document. Missing fields make it PARTIAL,
// never FAILED.
func (v *Validator) Validate(source string, f Fields) InvoiceRecord {
	rec := InvoiceRecord{
		Source:        source,
		InvoiceNumber: f.InvoiceNumber,
		BillingID:     f.BillingID,
		Domain:        f.Domain,
		PeriodStart:   f.PeriodStart,
		PeriodEnd:     f.PeriodEnd,
		Subtotal:      f.Subtotal,
		VAT:           f.VAT,
		Total:         f.Total,
		Supplier:      f.Supplier,
		VATNumber:     f.VATNumber,
		MissingFields: make([]Field, 0),
	}

	for _, field := range AllFields {
		if !f.Has(field) {
			rec.MissingFields = append(rec.MissingFields, field)
		}
	}
	if len(rec.MissingFields) == 0 {
		rec.Status = StatusComplete
	} else {
		rec.Status = StatusPartial
	}

	for _, failure := range f.Failures {
		rec.Warnings = append(rec.Warnings, failure.Error())
	}
	rec.Warnings = append(rec.Warnings, f.Warnings...)

	if f.Subtotal.Valid && f.VAT.Valid && f.Total.Valid {
		gap := f.Subtotal.Decimal.Add(f.VAT.Decimal).Sub(f.Total.Decimal).Abs()
		if gap.GreaterThan(v.tolerance) {
			rec.Warnings = append(rec.Warnings, WarningInconsistentTotals)
		}
	}
	if f.PeriodStart != nil && f.PeriodEnd != nil && f.PeriodEnd.Before(*f.PeriodStart) {
		rec.Warnings = append(rec.Warnings, WarningPeriodOrder)
	}

	rec.NeedsReview = len(rec.Warnings) > 0
	for _, field := range v.required {
		if !f.Has(field) {
			rec.NeedsReview = true
		}
	}
	return rec
}

// ParseRequired converts field names into a required list
func ParseRequired(names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		f, err := ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("parsing required fields: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
