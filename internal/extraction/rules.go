package extraction

import (
	"fmt"
	"regexp"
)

// defaultWindow is how far past a label a value is looked for
const defaultWindow = 48

// Rule recognizes one field's value in normalized text.
//
// A labeled rule searches a window after every Label match for the first
// Value match. A rule without a Label is anchored on context alone and
// every Value match is a candidate. The first capture group of Value is the
// matched value; without groups the whole match is used.
type Rule struct {
	ID    string
	Field Field
	Label *regexp.Regexp
	Value *regexp.Regexp
	// Window is the number of bytes after the label searched for a value,
	// extended to the end of the line it lands on.
	Window int
	// Exclude rejects a label occurrence when it matches the text preceding
	// the label on the same line.
	Exclude *regexp.Regexp
	// Unique makes the rule yield nothing when its candidates disagree.
	Unique bool
}

// RuleSet is an ordered list of rules. Order matters: per field the first
// rule with a candidate wins.
type RuleSet []Rule

// ForField returns the rules for a field in declared order
func (rs RuleSet) ForField(field Field) []Rule {
	rules := make([]Rule, 0)
	for _, r := range rs {
		if r.Field == field {
			rules = append(rules, r)
		}
	}
	return rules
}

// Validate checks that every rule has an id, a known field and a value pattern
func (rs RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs))
	for i, r := range rs {
		if r.ID == "" {
			return fmt.Errorf("rule %d: missing id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if _, err := ParseField(string(r.Field)); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if r.Value == nil {
			return fmt.Errorf("rule %s: missing value pattern", r.ID)
		}
	}
	return nil
}

// Value shapes shared by the default rules
const (
	currencyShape = `(?:[€$£]|EUR|USD|GBP)`
	numberShape   = `-?\d(?:[\d.,']*\d)?`
	amountShape   = `(?:` + currencyShape + `\s?` + numberShape +
		`|` + numberShape + `\s?` + currencyShape +
		`|-?\d[\d.,']*[.,]\d{1,4})`
	monthShape  = `\p{L}{3,9}\.?`
	dateShape   = `(?:\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{1,2}\s+` + monthShape + `,?\s+\d{2,4}|` + monthShape + `\s+\d{1,2},?\s+\d{2,4})`
	domainShape = `(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,63}`
	vatIDShape  = `[A-Z]{2}\s?[0-9A-Z][0-9A-Z.+*]{1,14}`
	refShape    = `\d[\w/-]*|[A-Za-z][\w/-]*?\d[\w/-]*`
)

func adjacent(shape string) *regexp.Regexp {
	return regexp.MustCompile(`^[\s:#.]*(` + shape + `)`)
}

// DefaultRules returns the built-in rule set
func DefaultRules() RuleSet {
	amount := adjacent(amountShape)

	return RuleSet{
		{
			ID:    "invoice_number/label",
			Field: FieldInvoiceNumber,
			Label: regexp.MustCompile(`(?i)\b(?:invoice\s*(?:number|num\.?|no\.?|nr\.?|#|id)|factuur\s*(?:nummer|nr\.?)|rechnungs\s*(?:nummer|nr\.?))`),
			Value: adjacent(refShape),
		},
		{
			ID:    "invoice_number/bare",
			Field: FieldInvoiceNumber,
			Label: regexp.MustCompile(`(?i)\binvoice\b`),
			Value: regexp.MustCompile(`^[\s:#]*(\d[\w/-]{3,}|[A-Za-z]{1,5}-?\d[\w/-]{2,})`),
		},

		{
			ID:    "billing_id/label",
			Field: FieldBillingID,
			Label: regexp.MustCompile(`(?i)\bbilling\s*(?:account\s*)?(?:id|number|no\.?)`),
			Value: adjacent(`\d{4}-\d{4}-\d{4}|[A-Z0-9]{6}-[A-Z0-9]{6}-[A-Z0-9]{6}|[A-Za-z0-9][\w-]{3,}`),
		},
		{
			ID:    "billing_id/account",
			Field: FieldBillingID,
			Label: regexp.MustCompile(`(?i)\b(?:account|customer)\s*(?:id|number|no\.?)`),
			Value: adjacent(`[A-Za-z0-9][\w-]{3,}`),
		},

		{
			ID:    "domain/label",
			Field: FieldDomain,
			Label: regexp.MustCompile(`(?i)\bdomain(?:\s*name)?`),
			Value: adjacent(domainShape),
		},
		{
			ID:     "domain/bill-to",
			Field:  FieldDomain,
			Label:  regexp.MustCompile(`(?i)\bbill(?:ed)?\s+to\b`),
			Value:  regexp.MustCompile(`(?:^|\s)(` + domainShape + `)(?:\s|$)`),
			Window: 160,
		},

		{
			ID:    "period_start/summary",
			Field: FieldPeriodStart,
			Label: regexp.MustCompile(`(?i)\b(?:summary\s+for|(?:billing|service|invoice)\s+period|period)`),
			Value: adjacent(dateShape),
		},
		{
			ID:    "period_start/label",
			Field: FieldPeriodStart,
			Label: regexp.MustCompile(`(?i)\b(?:period\s+start|start\s+date|service\s+from)`),
			Value: adjacent(dateShape),
		},
		{
			ID:    "period_end/summary",
			Field: FieldPeriodEnd,
			Label: regexp.MustCompile(`(?i)\b(?:summary\s+for|(?:billing|service|invoice)\s+period|period)`),
			Value: regexp.MustCompile(`^[\s:]*` + dateShape + `\s*(?:-|to|until|through|tot|bis)\s*(` + dateShape + `)`),
		},
		{
			ID:    "period_end/label",
			Field: FieldPeriodEnd,
			Label: regexp.MustCompile(`(?i)\b(?:period\s+end|end\s+date|service\s+to)`),
			Value: adjacent(dateShape),
		},

		{
			ID:    "subtotal/label",
			Field: FieldSubtotal,
			Label: regexp.MustCompile(`(?i)\bsub\s*-?\s*total(?:\s+in\s+[a-z]{3})?(?:\s*\((?:excl\.?|excluding)[^)\n]*\))?`),
			Value: amount,
		},
		{
			ID:    "subtotal/net",
			Field: FieldSubtotal,
			Label: regexp.MustCompile(`(?i)\b(?:(?:total|amount)\s+excl(?:\.|uding)?\s+(?:vat|tax|btw)|net\s+(?:amount|total)|subtotaal|zwischensumme)`),
			Value: amount,
		},

		{
			ID:      "vat/label",
			Field:   FieldVAT,
			Label:   regexp.MustCompile(`(?i)\b(?:vat|tax|btw|iva|mwst|gst)\b(?:\s+amount)?(?:\s*\([^)\n]{0,40}\))?(?:\s*\d{1,2}(?:[.,]\d{1,2})?\s*%)?(?:\s+in\s+[a-z]{3})?`),
			Value:   amount,
			Exclude: regexp.MustCompile(`(?i)(?:incl\.?|including|excl\.?|excluding|inkl\.?|exkl\.?)\s*$`),
		},

		{
			ID:    "total/in-currency",
			Field: FieldTotal,
			Label: regexp.MustCompile(`(?i)\btotal\s+in\s+[a-z]{3}`),
			Value: amount,
		},
		{
			ID:    "total/due",
			Field: FieldTotal,
			Label: regexp.MustCompile(`(?i)\b(?:total\s+(?:amount\s+)?due|amount\s+due|balance\s+due|grand\s+total|total\s+incl(?:\.|uding)?\s+(?:vat|tax|btw)|total\s+amount|invoice\s+amount|te\s+betalen|totaalbedrag|gesamtbetrag)`),
			Value: amount,
		},
		{
			ID:      "total/bare",
			Field:   FieldTotal,
			Label:   regexp.MustCompile(`(?i)\b(?:total|totaal)\b`),
			Value:   amount,
			Exclude: regexp.MustCompile(`(?i)sub[\s-]*$`),
		},

		{
			ID:    "supplier/label",
			Field: FieldSupplier,
			Label: regexp.MustCompile(`(?i)\b(?:supplier|vendor|seller|sold\s+by|issued\s+by|billed\s+by|leverancier)\s*:`),
			Value: regexp.MustCompile(`^\s*(\p{L}[\p{L}\p{N}&.,'() -]{1,79})`),
		},
		{
			ID:    "supplier/known",
			Field: FieldSupplier,
			Value: regexp.MustCompile(`\b(Google\s+Cloud\s+EMEA\s+Limited|Google\s+Workspace|Google\s+Ireland\s+Limited)\b`),
		},

		{
			ID:    "vat_number/supplier",
			Field: FieldVATNumber,
			Label: regexp.MustCompile(`(?i)\b(?:supplier|seller|vendor)\s+(?:vat|tax|btw)\s*(?:number|no\.?|id|reg(?:istration)?(?:\s+(?:number|no\.?))?)?`),
			Value: adjacent(vatIDShape),
		},
		{
			ID:      "vat_number/generic",
			Field:   FieldVATNumber,
			Label:   regexp.MustCompile(`(?i)\b(?:vat|tax|btw)\s*(?:number|no\.?|id|reg(?:istration)?\s*(?:number|no\.?)?|-?nummer)`),
			Value:   adjacent(vatIDShape),
			Exclude: regexp.MustCompile(`(?i)\b(?:customer|client|buyer|your|recipient|klant)\b`),
			Unique:  true,
		},
	}
}
