package invoice

import (
	"time"

	"github.com/zombor/invoice-index/internal/batch"
	"github.com/zombor/invoice-index/internal/extraction"
)

// Run is one stored batch invocation
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Method    string    `json:"method"`
	// Fingerprint identifies the extraction settings the records were made with
	Fingerprint string `json:"fingerprint"`
	// RecordKeys holds the cache key of each record; empty for FAILED records
	RecordKeys []string                   `json:"record_keys"`
	Records    []extraction.InvoiceRecord `json:"records,omitempty"`
	Summary    batch.Summary              `json:"summary"`
}

// Extraction is the result of extracting a single uploaded or posted document
type Extraction struct {
	ID     string                   `json:"id"`
	File   string                   `json:"file,omitempty"` // archived upload, if any
	Key    string                   `json:"key,omitempty"`
	Record extraction.InvoiceRecord `json:"record"`
}
