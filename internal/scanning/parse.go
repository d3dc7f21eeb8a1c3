package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-index/internal/extraction"
)

// replyFields maps reply keys onto record fields
var replyFields = map[string]extraction.Field{
	"supplier":           extraction.FieldSupplier,
	"supplier_vat":       extraction.FieldVATNumber,
	"invoice_number":     extraction.FieldInvoiceNumber,
	"invoice_date_start": extraction.FieldPeriodStart,
	"invoice_date_end":   extraction.FieldPeriodEnd,
	"billing_id":         extraction.FieldBillingID,
	"domain":             extraction.FieldDomain,
	"subtotal_eur":       extraction.FieldSubtotal,
	"vat_amount_eur":     extraction.FieldVAT,
	"total_eur":          extraction.FieldTotal,
}

// extractJSON strips markdown fences and cuts the reply to its outer object
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseFields turns a model reply into typed fields. String values go through
// the same coercion as rule matches; JSON numbers are taken as exact amounts.
func parseFields(reply, text string, coercer *extraction.Coercer) (extraction.Fields, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return extraction.Fields{}, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return extraction.Fields{}, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := validateReply(v); err != nil {
		return extraction.Fields{}, err
	}
	obj := v.(map[string]any)

	ex := extraction.Extraction{Matches: make(map[extraction.Field]extraction.FieldMatch)}
	numbers := make(map[extraction.Field]json.Number)
	for key, field := range replyFields {
		switch val := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				ex.Matches[field] = extraction.FieldMatch{Field: field, Raw: s, RuleID: "model/" + key}
			}
		case json.Number:
			numbers[field] = val
		}
	}

	fields := coercer.Coerce(ex, text)
	for _, field := range extraction.AllFields {
		n, ok := numbers[field]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			fields.Failures = append(fields.Failures, extraction.CoercionFailure{Field: field, Raw: n.String(), Err: extraction.ErrInvalidAmount})
			continue
		}
		if d.Exponent() < -2 {
			d = d.Round(2)
		}
		fields.SetAmount(field, d)
	}
	return fields, nil
}
