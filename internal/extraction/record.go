package extraction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field names one column of an invoice record
type Field string

const (
	FieldInvoiceNumber Field = "invoice_number"
	FieldBillingID     Field = "billing_id"
	FieldDomain        Field = "domain"
	FieldPeriodStart   Field = "period_start"
	FieldPeriodEnd     Field = "period_end"
	FieldSubtotal      Field = "subtotal"
	FieldVAT           Field = "vat"
	FieldTotal         Field = "total"
	FieldSupplier      Field = "supplier"
	FieldVATNumber     Field = "vat_number"
)

// AllFields is the fixed field set in column order
var AllFields = []Field{
	FieldInvoiceNumber,
	FieldBillingID,
	FieldDomain,
	FieldPeriodStart,
	FieldPeriodEnd,
	FieldSubtotal,
	FieldVAT,
	FieldTotal,
	FieldSupplier,
	FieldVATNumber,
}

// ParseField converts a field name into a Field
func ParseField(name string) (Field, error) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field: %s", name)
}

// RawDocument is one input document: where it came from and its extracted text
type RawDocument struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// FieldMatch is a matched substring in normalized text
type FieldMatch struct {
	Field  Field  `json:"field"`
	Raw    string `json:"raw"`
	Offset int    `json:"offset"`
	RuleID string `json:"rule_id"`
}

// Status classifies how complete a record is
type Status string

const (
	StatusComplete Status = "COMPLETE"
	StatusPartial  Status = "PARTIAL"
	StatusFailed   Status = "FAILED"
)

// Fields holds typed field values produced by a FieldSource.
// Zero strings, nil dates and invalid decimals mean the field is absent.
type Fields struct {
	InvoiceNumber string
	BillingID     string
	Domain        string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	Subtotal      decimal.NullDecimal
	VAT           decimal.NullDecimal
	Total         decimal.NullDecimal
	Supplier      string
	VATNumber     string

	Failures []CoercionFailure
	Warnings []string
}

// Has reports whether the field carries a value
func (f Fields) Has(field Field) bool {
	switch field {
	case FieldInvoiceNumber:
		return f.InvoiceNumber != ""
	case FieldBillingID:
		return f.BillingID != ""
	case FieldDomain:
		return f.Domain != ""
	case FieldPeriodStart:
		return f.PeriodStart != nil
	case FieldPeriodEnd:
		return f.PeriodEnd != nil
	case FieldSubtotal:
		return f.Subtotal.Valid
	case FieldVAT:
		return f.VAT.Valid
	case FieldTotal:
		return f.Total.Valid
	case FieldSupplier:
		return f.Supplier != ""
	case FieldVATNumber:
		return f.VATNumber != ""
	}
	return false
}

// InvoiceRecord is the validated result for one document
type InvoiceRecord struct {
	Source        string              `json:"source"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	BillingID     string              `json:"billing_id,omitempty"`
	Domain        string              `json:"domain,omitempty"`
	PeriodStart   *time.Time          `json:"period_start,omitempty"`
	PeriodEnd     *time.Time          `json:"period_end,omitempty"`
	Subtotal      decimal.NullDecimal `json:"subtotal"`
	VAT           decimal.NullDecimal `json:"vat"`
	Total         decimal.NullDecimal `json:"total"`
	Supplier      string              `json:"supplier,omitempty"`
	VATNumber     string              `json:"vat_number,omitempty"`
	Status        Status              `json:"status"`
	MissingFields []Field             `json:"missing_fields"`
	Warnings      []string            `json:"warnings,omitempty"`
	NeedsReview   bool                `json:"needs_review"`
	Error         string              `json:"error,omitempty"`
	Method        string              `json:"method,omitempty"`
}

// MarshalJSON writes amounts as strings with two fraction digits, or null when absent.
// The default decimal encoding drops trailing zeros.
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	type plain InvoiceRecord
	return json.Marshal(struct {
		plain
		Subtotal *string `json:"subtotal"`
		VAT      *string `json:"vat"`
		Total    *string `json:"total"`
	}{plain(r), fixed(r.Subtotal), fixed(r.VAT), fixed(r.Total)})
}

func fixed(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

// Failed builds the FAILED record for a document that could not be processed
func Failed(source string, err error) InvoiceRecord {
	missing := make([]Field, len(AllFields))
	copy(missing, AllFields)

	rec := InvoiceRecord{
		Source:        source,
		Status:        StatusFailed,
		MissingFields: missing,
		NeedsReview:   true,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
