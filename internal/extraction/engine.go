package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// FieldSource turns normalized text into typed fields.
// The rule engine and the AI clients both implement it.
type FieldSource interface {
	// Name identifies the source in records and logs
	Name() string
	// Fields extracts the fixed field set from normalized text
	Fields(ctx context.Context, text string) (Fields, error)
}

// Configured is implemented by sources whose output depends on settings
// beyond their name, such as a model or a locale
type Configured interface {
	Config() string
}

// RuleSource is the deterministic FieldSource: ordered pattern rules followed by type coercion
type RuleSource struct {
	extractor *Extractor
	coercer   *Coercer
}

// NewRuleSource combines an Extractor and a Coercer
func NewRuleSource(extractor *Extractor, coercer *Coercer) *RuleSource {
	return &RuleSource{
		extractor: extractor,
		coercer:   coercer,
	}
}

// Name returns "rules"
func (r *RuleSource) Name() string {
	return "rules"
}

// Config describes the locale and every rule in order
func (r *RuleSource) Config() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rules locale=%s\n", r.coercer.locale)
	for _, rule := range r.extractor.rules {
		fmt.Fprintf(&b, "%s %s %q %q %d %q %t\n",
			rule.ID, rule.Field, pattern(rule.Label), pattern(rule.Value), rule.Window, pattern(rule.Exclude), rule.Unique)
	}
	return b.String()
}

func pattern(re *regexp.Regexp) string {
	if re == nil {
		return ""
	}
	return re.String()
}

// Fields never fails; unmatched fields are simply absent
func (r *RuleSource) Fields(_ context.Context, text string) (Fields, error) {
	return r.coercer.Coerce(r.extractor.Extract(text), text), nil
}

// Engine runs the full pipeline for a single document
type Engine struct {
	source      FieldSource
	validator   *Validator
	fingerprint string
}

// NewEngine creates an Engine
func NewEngine(source FieldSource, validator *Validator) *Engine {
	return &Engine{
		source:      source,
		validator:   validator,
		fingerprint: fingerprint(source, validator),
	}
}

// NewDefaultEngine creates an Engine with the built-in rules, locale detection and default validation
func NewDefaultEngine() *Engine {
	return NewEngine(
		NewRuleSource(NewExtractor(DefaultRules()), NewCoercer(LocaleAuto)),
		NewValidator(DefaultRequired, DefaultTolerance),
	)
}

// Method names the FieldSource behind this engine
func (e *Engine) Method() string {
	return e.source.Name()
}

// Fingerprint identifies the configuration that produced a record: the source
// settings, the required fields and the tolerance. Two engines with the same
// fingerprint give the same record for the same text.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

func fingerprint(source FieldSource, v *Validator) string {
	config := source.Name()
	if c, ok := source.(Configured); ok {
		config = c.Config()
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00required=%v\x00tolerance=%s", config, v.required, v.tolerance)
	return source.Name() + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Process returns the record for one document. Whole-document problems
// produce a FAILED record instead of an error.
func (e *Engine) Process(ctx context.Context, doc RawDocument) (rec InvoiceRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = e.failed(doc.Source, fmt.Errorf("panic: %v", r))
		}
	}()

	text := Normalize(doc.Text)
	if text == "" {
		return e.failed(doc.Source, ErrEmptyDocument)
	}
	if !hasText(text) {
		return e.failed(doc.Source, ErrNoText)
	}

	fields, err := e.source.Fields(ctx, text)
	if err != nil {
		return e.failed(doc.Source, fmt.Errorf("extracting fields: %w", err))
	}

	rec = e.validator.Validate(doc.Source, fields)
	rec.Method = e.source.Name()
	return rec
}

func (e *Engine) failed(source string, err error) InvoiceRecord {
	failure := &DocumentFailure{Source: source, Err: err}
	slog.Warn("Document failed", "source", source, "method", e.source.Name(), "error", err)
	rec := Failed(source, failure)
	rec.Method = e.source.Name()
	return rec
}
