package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-index/internal/extraction"
)

const defaultWorkers = 4

// Processor produces the record for one document. It must not return
// without a record; whole-document problems are FAILED records.
type Processor interface {
	Process(ctx context.Context, doc extraction.RawDocument) extraction.InvoiceRecord
}

// Loader reads a document from a path
type Loader interface {
	Load(ctx context.Context, path string) (extraction.RawDocument, error)
}

// ProgressFunc is called once per finished document, possibly concurrently
type ProgressFunc func(done, total int, rec extraction.InvoiceRecord)

// Runner processes documents concurrently and returns records in input order
type Runner struct {
	proc     Processor
	workers  int
	progress ProgressFunc
}

// Option configures a Runner
type Option func(*Runner)

// WithWorkers bounds how many documents are processed at once
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithProgress registers a callback for finished documents
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// NewRunner creates a Runner with 4 workers unless configured otherwise
func NewRunner(proc Processor, opts ...Option) *Runner {
	r := &Runner{
		proc:    proc,
		workers: defaultWorkers,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes already loaded documents. The result has one record per
// document at the same index.
func (r *Runner) Run(ctx context.Context, docs []extraction.RawDocument) []extraction.InvoiceRecord {
	return r.run(ctx, len(docs),
		func(i int) string { return docs[i].Source },
		func(ctx context.Context, i int) extraction.InvoiceRecord {
			return r.proc.Process(ctx, docs[i])
		},
	)
}

// RunPaths loads and processes documents inside the workers. A document that
// fails to load gets a FAILED record.
func (r *Runner) RunPaths(ctx context.Context, paths []string, loader Loader) []extraction.InvoiceRecord {
	return r.run(ctx, len(paths),
		func(i int) string { return paths[i] },
		func(ctx context.Context, i int) extraction.InvoiceRecord {
			doc, err := loader.Load(ctx, paths[i])
			if err != nil {
				return failed(paths[i], err)
			}
			return r.proc.Process(ctx, doc)
		},
	)
}

func (r *Runner) run(ctx context.Context, n int, source func(int) string, work func(context.Context, int) extraction.InvoiceRecord) []extraction.InvoiceRecord {
	start := time.Now()
	records := make([]extraction.InvoiceRecord, n)
	var done atomic.Int64

	// Plain group: one document failing must not cancel the others
	var g errgroup.Group
	g.SetLimit(r.workers)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			records[i] = cancelled(source(i), err)
			continue
		}
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					records[i] = failed(source(i), fmt.Errorf("panic: %v", p))
				}
				if r.progress != nil {
					r.progress(int(done.Add(1)), n, records[i])
				}
			}()

			if err := ctx.Err(); err != nil {
				records[i] = cancelled(source(i), err)
				return nil
			}
			records[i] = work(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(records)
	slog.Info("Batch finished",
		"documents", summary.Total,
		"complete", summary.Complete,
		"partial", summary.Partial,
		"failed", summary.Failed,
		"workers", r.workers,
		"duration", time.Since(start))
	return records
}

func failed(source string, err error) extraction.InvoiceRecord {
	slog.Warn("Document failed", "source", source, "error", err)
	return extraction.Failed(source, &extraction.DocumentFailure{Source: source, Err: err})
}

func cancelled(source string, err error) extraction.InvoiceRecord {
	return extraction.Failed(source, &extraction.DocumentFailure{Source: source, Err: fmt.Errorf("batch cancelled: %w", err)})
}
