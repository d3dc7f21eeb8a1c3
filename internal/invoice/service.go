package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-index/internal/batch"
	"github.com/zombor/invoice-index/internal/extraction"
	"github.com/zombor/invoice-index/internal/source"
)

// ErrNoDocuments is returned when a run is requested without documents
var ErrNoDocuments = errors.New("at least one document is required")

// IDGenerator generates unique IDs for runs and uploads
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// DocumentLoader turns uploaded bytes into a document
type DocumentLoader interface {
	LoadBytes(ctx context.Context, name string, data []byte, contentType string) (extraction.RawDocument, error)
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service extracts documents and keeps the run history
type Service struct {
	db          DB
	proc        *Cache
	loader      DocumentLoader
	storage     Storage
	runOpts     []batch.Option
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with UUID IDs and the wall clock.
// proc is wrapped in a Cache backed by db; opts configure batch runs.
func NewService(db DB, proc Processor, loader DocumentLoader, storage Storage, opts ...batch.Option) *Service {
	return NewServiceWithDeps(db, proc, loader, storage, uuidGenerator{}, defaultTimeSource{}, opts...)
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(db DB, proc Processor, loader DocumentLoader, storage Storage, idGen IDGenerator, timeSrc TimeSource, opts ...batch.Option) *Service {
	return &Service{
		db:          db,
		proc:        NewCache(db, proc),
		loader:      loader,
		storage:     storage,
		runOpts:     opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename keeps alphanumerics, spaces, hyphens and underscores and caps the base at 50 bytes
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}
	return base + strings.ToLower(ext)
}

// ExtractUpload archives an uploaded file, loads its text and processes it.
// Files that cannot be loaded are removed from the archive again.
func (s *Service) ExtractUpload(ctx context.Context, filename string, data []byte, contentType string) (*Extraction, error) {
	id := s.idGenerator.Generate()

	saved, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	doc, err := s.loader.LoadBytes(ctx, filename, data, contentType)
	if err != nil {
		slog.Error("Failed to load upload",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if err := s.storage.Delete(saved); err != nil {
			slog.Warn("Failed to delete file", "filename", saved, "error", err)
		}
		return nil, err
	}

	ex := s.extract(ctx, id, doc)
	ex.File = saved
	return ex, nil
}

// ExtractText processes a document whose text is already known
func (s *Service) ExtractText(ctx context.Context, doc extraction.RawDocument) *Extraction {
	return s.extract(ctx, s.idGenerator.Generate(), doc)
}

func (s *Service) extract(ctx context.Context, id string, doc extraction.RawDocument) *Extraction {
	rec := s.proc.Process(ctx, doc)
	ex := &Extraction{ID: id, Record: rec}
	if rec.Status != extraction.StatusFailed {
		ex.Key = RecordKey(s.proc.Fingerprint(), doc.Text)
	}
	return ex
}

// GetUploadFile returns an archived upload and its content type
func (s *Service) GetUploadFile(name string) ([]byte, string, error) {
	data, err := s.storage.Get(name)
	if err != nil {
		return nil, "", fmt.Errorf("getting upload: %w", err)
	}
	return data, source.ContentType(name, data), nil
}

// RunBatch processes documents concurrently and stores the run
func (s *Service) RunBatch(ctx context.Context, docs []extraction.RawDocument) (*Run, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	records := s.runner().Run(ctx, docs)
	keys := make([]string, len(records))
	for i, rec := range records {
		if rec.Status != extraction.StatusFailed {
			keys[i] = RecordKey(s.proc.Fingerprint(), docs[i].Text)
		}
	}
	return s.saveRun(records, keys)
}

// RunPaths loads and processes files concurrently and stores the run
func (s *Service) RunPaths(ctx context.Context, paths []string, loader batch.Loader) (*Run, error) {
	if len(paths) == 0 {
		return nil, ErrNoDocuments
	}

	kl := &keyingLoader{next: loader, fingerprint: s.proc.Fingerprint(), keys: make(map[string]string, len(paths))}
	records := s.runner().RunPaths(ctx, paths, kl)
	keys := make([]string, len(records))
	for i, rec := range records {
		if rec.Status != extraction.StatusFailed {
			keys[i] = kl.key(paths[i])
		}
	}
	return s.saveRun(records, keys)
}

func (s *Service) runner() *batch.Runner {
	return batch.NewRunner(s.proc, s.runOpts...)
}

func (s *Service) saveRun(records []extraction.InvoiceRecord, keys []string) (*Run, error) {
	run := &Run{
		ID:          s.idGenerator.Generate(),
		CreatedAt:   s.timeSource.Now(),
		Method:      s.proc.Method(),
		Fingerprint: s.proc.Fingerprint(),
		RecordKeys:  keys,
		Records:     records,
		Summary:     batch.Summarize(records),
	}
	if err := s.db.SaveRun(run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (s *Service) GetRun(id string) (*Run, error) {
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first
func (s *Service) ListRuns() ([]*Run, error) {
	runs, err := s.db.ListRuns()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRecord retrieves a stored record by content key
func (s *Service) GetRecord(key string) (*extraction.InvoiceRecord, error) {
	rec, err := s.db.GetRecord(key)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return rec, nil
}

// keyingLoader remembers the content key of every document it loads
type keyingLoader struct {
	next        batch.Loader
	fingerprint string

	mu   sync.Mutex
	keys map[string]string
}

func (k *keyingLoader) Load(ctx context.Context, path string) (extraction.RawDocument, error) {
	doc, err := k.next.Load(ctx, path)
	if err == nil {
		k.mu.Lock()
		k.keys[path] = RecordKey(k.fingerprint, doc.Text)
		k.mu.Unlock()
	}
	return doc, err
}

func (k *keyingLoader) key(path string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.keys[path]
}
