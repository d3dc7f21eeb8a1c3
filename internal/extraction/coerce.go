package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Locale decides how an ambiguous decimal separator is read
type Locale int

const (
	// LocaleAuto detects the convention from the document
	LocaleAuto Locale = iota
	// LocaleDecimalComma reads 1.234,56
	LocaleDecimalComma
	// LocaleDecimalPoint reads 1,234.56
	LocaleDecimalPoint
)

// ParseLocale converts a locale hint ("auto", "comma", "point") into a Locale
func ParseLocale(s string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LocaleAuto, nil
	case "comma", "eu", "decimal-comma":
		return LocaleDecimalComma, nil
	case "point", "dot", "us", "decimal-point":
		return LocaleDecimalPoint, nil
	}
	return LocaleAuto, fmt.Errorf("unknown locale: %s", s)
}

func (l Locale) String() string {
	switch l {
	case LocaleDecimalComma:
		return "comma"
	case LocaleDecimalPoint:
		return "point"
	}
	return "auto"
}

var (
	amountToken   = regexp.MustCompile(`\d[\d.,]*\d`)
	supplierTail  = regexp.MustCompile(`(?i)\s+(?:vat|tax|btw|reg(?:istration)?|kvk|coc)\b.*$`)
	vatNumber     = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z+*]{2,13}$`)
	isoDate       = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	numericDate   = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d+)$`)
	dayMonthYear  = regexp.MustCompile(`^(\d{1,2})\s+(\p{L}+)\.?,?\s+(\d+)$`)
	monthDayYear  = regexp.MustCompile(`^(\p{L}+)\.?\s+(\d{1,2}),?\s+(\d+)$`)
	trailingPunct = ".,;:"
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "mrt": time.March, "maa": time.March, "mär": time.March,
	"apr": time.April, "may": time.May, "mei": time.May, "mai": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September, "oct": time.October,
	"okt": time.October, "nov": time.November, "dec": time.December, "dez": time.December,
}

// Coercer converts matched strings into typed values
type Coercer struct {
	locale Locale
}

// NewCoercer creates a Coercer; LocaleAuto detects the convention per document
func NewCoercer(locale Locale) *Coercer {
	return &Coercer{locale: locale}
}

// Coerce converts an extraction into typed fields. Values that fail to convert
// are left unset and recorded as failures.
func (c *Coercer) Coerce(ex Extraction, text string) Fields {
	var f Fields

	locale := c.locale
	if locale == LocaleAuto {
		locale = DetectLocale(text)
	}

	fail := func(m FieldMatch, err error) {
		f.Failures = append(f.Failures, CoercionFailure{Field: m.Field, Raw: m.Raw, Err: err})
	}

	for _, field := range AllFields {
		m, ok := ex.Matches[field]
		if !ok {
			continue
		}
		switch field {
		case FieldInvoiceNumber:
			f.InvoiceNumber = cleanToken(m.Raw)
		case FieldBillingID:
			f.BillingID = cleanToken(m.Raw)
		case FieldDomain:
			f.Domain = strings.ToLower(cleanToken(m.Raw))
		case FieldSupplier:
			f.Supplier = CleanSupplier(m.Raw)
		case FieldVATNumber:
			v, err := VATNumber(m.Raw)
			if err != nil {
				fail(m, err)
				continue
			}
			f.VATNumber = v
		case FieldPeriodStart, FieldPeriodEnd:
			d, err := ParseDate(m.Raw)
			if err != nil {
				fail(m, err)
				continue
			}
			if field == FieldPeriodStart {
				f.PeriodStart = &d
			} else {
				f.PeriodEnd = &d
			}
		case FieldSubtotal, FieldVAT, FieldTotal:
			d, err := c.Amount(m.Raw, locale)
			if err != nil {
				fail(m, err)
				continue
			}
			f.SetAmount(field, d)
		}
	}

	for _, field := range ex.Ambiguous {
		f.Warnings = append(f.Warnings, fmt.Sprintf("ambiguous %s: conflicting candidates", field))
	}
	return f
}

// SetAmount stores an amount on one of the amount fields
func (f *Fields) SetAmount(field Field, d decimal.Decimal) {
	switch field {
	case FieldSubtotal:
		f.Subtotal = decimal.NewNullDecimal(d)
	case FieldVAT:
		f.VAT = decimal.NewNullDecimal(d)
	case FieldTotal:
		f.Total = decimal.NewNullDecimal(d)
	}
}

// Amount parses a money string. The rightmost of mixed separators is the
// decimal point; a lone separator followed by exactly three digits is read
// according to the locale.
func (c *Coercer) Amount(raw string, locale Locale) (decimal.Decimal, error) {
	var b strings.Builder
	negative := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = true
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(s, sep) > 1 || (len(s)-idx-1 == 3 && s[:idx] != "0" && !decimalIn(sep, locale)) {
			s = strings.ReplaceAll(s, sep, "")
		} else {
			s = strings.Replace(s, sep, ".", 1)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.Exponent() < -2 {
		d = d.Round(2)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// decimalIn reports whether sep is the decimal separator under locale
func decimalIn(sep string, locale Locale) bool {
	switch locale {
	case LocaleDecimalComma:
		return sep == ","
	case LocaleDecimalPoint:
		return sep == "."
	}
	return false
}

// DetectLocale votes over the unambiguous amounts in text
func DetectLocale(text string) Locale {
	comma, point := 0, 0
	for _, tok := range amountToken.FindAllString(text, -1) {
		lastDot := strings.LastIndexByte(tok, '.')
		lastComma := strings.LastIndexByte(tok, ',')
		switch {
		case lastDot >= 0 && lastComma >= 0:
			if lastDot > lastComma {
				point++
			} else {
				comma++
			}
		case lastComma >= 0 && strings.Count(tok, ",") == 1 && len(tok)-lastComma-1 == 2:
			comma++
		case lastDot >= 0 && strings.Count(tok, ".") == 1 && len(tok)-lastDot-1 == 2:
			point++
		}
	}
	switch {
	case comma > point:
		return LocaleDecimalComma
	case point > comma:
		return LocaleDecimalPoint
	}
	return LocaleAuto
}

// ParseDate reads day-month-year and ISO dates. Two-digit years are rejected.
func ParseDate(raw string) (time.Time, error) {
	s := strings.Join(strings.Fields(strings.TrimRight(strings.TrimSpace(raw), trailingPunct)), " ")

	var day, year string
	var month time.Month

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return buildDate(raw, m[3], monthNumber(m[2]), m[1])
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		day, month, year = m[1], monthNumber(m[2]), m[3]
	} else if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		day, month, year = m[1], monthName(m[2]), m[3]
	} else if m := monthDayYear.FindStringSubmatch(s); m != nil {
		day, month, year = m[2], monthName(m[1]), m[3]
	} else {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}

	if len(year) == 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTwoDigitYear, raw)
	}
	return buildDate(raw, day, month, year)
}

func buildDate(raw, day string, month time.Month, year string) (time.Time, error) {
	d, derr := strconv.Atoi(day)
	y, yerr := strconv.Atoi(year)
	if derr != nil || yerr != nil || len(year) != 4 || month == 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != month {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}

func monthNumber(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func monthName(s string) time.Month {
	r := []rune(strings.ToLower(s))
	if len(r) < 3 {
		return 0
	}
	return months[string(r[:3])]
}

// VATNumber canonicalizes a tax id: upper case, no spaces or dots
func VATNumber(raw string) (string, error) {
	v := strings.Map(func(r rune) rune {
		if r == '.' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
	if !vatNumber.MatchString(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVATNumber, raw)
	}
	return v, nil
}

// CleanSupplier trims a supplier name and drops trailing registration details
func CleanSupplier(raw string) string {
	s := supplierTail.ReplaceAllString(strings.TrimSpace(raw), "")
	return strings.TrimRight(strings.TrimSpace(s), ",;: ")
}

func cleanToken(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), trailingPunct)
}
