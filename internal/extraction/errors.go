package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument means nothing was left after normalization
	ErrEmptyDocument = errors.New("document text is empty")
	// ErrNoText means the document has no letters or digits at all
	ErrNoText = errors.New("document contains no extractable text")

	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrTwoDigitYear     = errors.New("ambiguous two-digit year")
	ErrInvalidVATNumber = errors.New("invalid vat number")

	// ErrEmptyRuleFile means a rule file holds no YAML document
	ErrEmptyRuleFile = errors.New("rule file is empty")
)

// CoercionFailure records a matched value that could not be converted.
// The field is treated as missing.
type CoercionFailure struct {
	Field Field
	Raw   string
	Err   error
}

func (c *CoercionFailure) Error() string {
	return fmt.Sprintf("coercing %s from %q: %v", c.Field, c.Raw, c.Err)
}

func (c *CoercionFailure) Unwrap() error {
	return c.Err
}

// DocumentFailure is an unrecoverable problem with a single document
type DocumentFailure struct {
	Source string
	Err    error
}

func (d *DocumentFailure) Error() string {
	return fmt.Sprintf("processing %s: %v", d.Source, d.Err)
}

func (d *DocumentFailure) Unwrap() error {
	return d.Err
}
