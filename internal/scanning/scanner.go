package scanning

import (
	"fmt"
	"time"

	"github.com/zombor/invoice-index/internal/extraction"
	"github.com/zombor/invoice-index/internal/source"
)

// Scanner is an AI model client. It can extract invoice fields from normalized
// text and transcribe scanned documents into text.
type Scanner interface {
	extraction.FieldSource
	extraction.Configured
	source.Transcriber
	// Close closes the scanner and releases resources
	Close() error
}

const (
	defaultTimeout       = 60 * time.Second
	defaultOllamaTimeout = 120 * time.Second
)

// Option configures a scanner
type Option func(*options)

type options struct {
	timeout time.Duration
	locale  extraction.Locale
}

// WithTimeout bounds every model request
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLocale sets how amount strings in model replies are read
func WithLocale(l extraction.Locale) Option {
	return func(o *options) {
		o.locale = l
	}
}

// config describes a scanner for record fingerprints
func config(name, model string, o options) string {
	return fmt.Sprintf("%s model=%s locale=%s", name, model, o.locale)
}

func buildOptions(timeout time.Duration, opts []Option) options {
	o := options{timeout: timeout, locale: extraction.LocaleAuto}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
