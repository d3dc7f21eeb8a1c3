package invoice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/zombor/invoice-index/internal/extraction"
)

// Processor is a batch processor that names its extraction method and
// fingerprints the configuration behind it
type Processor interface {
	Method() string
	Fingerprint() string
	Process(ctx context.Context, doc extraction.RawDocument) extraction.InvoiceRecord
}

// RecordKey is the content key of a document's text under an extraction configuration
func RecordKey(fingerprint, text string) string {
	sum := sha256.Sum256([]byte(fingerprint + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Cache returns stored records for text it has already processed.
// FAILED records are never stored.
type Cache struct {
	db   DB
	next Processor
}

// NewCache wraps next with a record cache backed by db
func NewCache(db DB, next Processor) *Cache {
	return &Cache{
		db:   db,
		next: next,
	}
}

// Method returns the wrapped processor's method
func (c *Cache) Method() string {
	return c.next.Method()
}

// Fingerprint returns the wrapped processor's fingerprint
func (c *Cache) Fingerprint() string {
	return c.next.Fingerprint()
}

// Process returns the cached record with this document's source, or
// processes the document and stores the result
func (c *Cache) Process(ctx context.Context, doc extraction.RawDocument) extraction.InvoiceRecord {
	key := RecordKey(c.next.Fingerprint(), doc.Text)

	cached, err := c.db.GetRecord(key)
	if err == nil {
		slog.Debug("Record cache hit", "source", doc.Source, "key", key)
		rec := *cached
		rec.Source = doc.Source
		return rec
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Warn("Failed to read record cache", "key", key, "error", err)
	}

	rec := c.next.Process(ctx, doc)
	if rec.Status == extraction.StatusFailed {
		return rec
	}
	if err := c.db.SaveRecord(key, &rec); err != nil {
		slog.Warn("Failed to store record", "source", doc.Source, "key", key, "error", err)
	}
	return rec
}
