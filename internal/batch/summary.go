package batch

import "github.com/zombor/invoice-index/internal/extraction"

// Summary counts records by status
type Summary struct {
	Total       int `json:"total"`
	Complete    int `json:"complete"`
	Partial     int `json:"partial"`
	Failed      int `json:"failed"`
	NeedsReview int `json:"needs_review"`
}

// Summarize counts the records of a batch
func Summarize(records []extraction.InvoiceRecord) Summary {
	s := Summary{Total: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case extraction.StatusComplete:
			s.Complete++
		case extraction.StatusPartial:
			s.Partial++
		case extraction.StatusFailed:
			s.Failed++
		}
		if rec.NeedsReview {
			s.NeedsReview++
		}
	}
	return s
}
