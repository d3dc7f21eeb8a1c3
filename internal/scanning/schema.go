package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaName = "invoice_fields_v1"

var replyKeys = []string{
	"supplier",
	"supplier_vat",
	"invoice_number",
	"invoice_date_start",
	"invoice_date_end",
	"billing_id",
	"domain",
	"subtotal_eur",
	"vat_percent",
	"vat_amount_eur",
	"total_eur",
	"currency",
}

// invoiceSchema describes a model reply. The strict form lists every key as
// required and forbids extra keys, which structured-output APIs demand; the
// lenient form is used to check replies from models that may omit keys.
func invoiceSchema(strict bool) map[string]any {
	text := map[string]any{"type": []string{"string", "null"}}
	money := map[string]any{"type": []string{"number", "string", "null"}}
	date := map[string]any{"type": []string{"string", "null"}}

	props := make(map[string]any, len(replyKeys))
	for _, key := range replyKeys {
		switch key {
		case "subtotal_eur", "vat_amount_eur", "total_eur":
			props[key] = money
		case "invoice_date_start", "invoice_date_end":
			props[key] = date
		default:
			props[key] = text
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if strict {
		schema["required"] = replyKeys
		schema["additionalProperties"] = false
	}
	return schema
}

var replySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(invoiceSchema(false))
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("adding schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return schema, nil
})

// validateReply checks a decoded reply against the invoice schema
func validateReply(v any) error {
	schema, err := replySchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	return nil
}
