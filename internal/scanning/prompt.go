package scanning

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxSnippet caps the text sent to a model
const maxSnippet = 8000

const systemPrompt = "You are an invoice extraction engine. " +
	"Only return valid JSON that exactly matches the provided JSON schema. " +
	"If a field is missing, return null for it. Do not guess."

const fieldsPrompt = `Extract the fields from the invoice text below.

Rules:
- Prefer values that appear under clear headings (Invoice number, Billing ID, Domain name, Subtotal, VAT, Total).
- supplier is the company that issued the invoice, supplier_vat is the supplier's own VAT number, never the customer's.
- If a 'Summary for <start> - <end>' range exists, use it for invoice_date_start and invoice_date_end.
- Dates must be in YYYY-MM-DD format.
- Amounts are numbers in the invoice currency (e.g. 6,90 -> 6.90).
- Do not invent values.

Return ONLY a JSON object with these keys:
supplier, supplier_vat, invoice_number, invoice_date_start, invoice_date_end,
billing_id, domain, subtotal_eur, vat_percent, vat_amount_eur, total_eur, currency

TEXT:
`

const transcribePrompt = `Transcribe all text in this invoice exactly as printed, line by line, top to bottom.
Keep labels and their values on the same line. Do not summarize, translate or add commentary.
Return only the transcribed text.`

var keyLine = regexp.MustCompile(`(?i)(invoice|summary for|billing|domain|subtotal|total|vat|btw|tax|supplier|bill to|period|google|workspace|cloud|limited|b\.?v\.?|gmbh)`)

// KeyLines keeps only the lines likely to carry invoice fields, capped at
// maxSnippet bytes. If no line qualifies the leading text is used.
func KeyLines(text string) string {
	lines := strings.Split(text, "\n")
	keep := make([]string, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if keyLine.MatchString(line) {
			keep = append(keep, line)
			continue
		}
		// the line under "Bill to" holds the customer and domain
		if i > 0 && strings.EqualFold(strings.TrimSpace(lines[i-1]), "bill to") {
			keep = append(keep, line)
		}
	}

	snippet := strings.Join(keep, "\n")
	if snippet == "" {
		snippet = text
	}
	return truncate(snippet, maxSnippet)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
