package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zombor/invoice-index/internal/extraction"
)

var (
	// ErrNoTextLayer means a PDF has no extractable text and no transcriber is configured
	ErrNoTextLayer = errors.New("pdf has no text layer")
	// ErrUnsupported means the file type cannot be turned into text
	ErrUnsupported = errors.New("unsupported document type")
)

// contentTypes maps supported extensions to MIME types
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Transcriber turns a scanned document into text
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, contentType string) (string, error)
}

// Supported reports whether path has a loadable extension
func Supported(path string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ContentType guesses the MIME type of a document from its name, then its bytes
func ContentType(name string, data []byte) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// Discover lists the supported documents under root in lexical order.
// A root that is a file is returned as is.
func Discover(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if !info.IsDir() {
		if !Supported(root) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, root)
		}
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Loader reads documents into RawDocuments
type Loader struct {
	transcriber Transcriber
}

// NewLoader creates a Loader. Without a transcriber, scans and images cannot be loaded.
func NewLoader(t Transcriber) *Loader {
	return &Loader{transcriber: t}
}

// Load reads a document from disk
func (l *Loader) Load(ctx context.Context, path string) (extraction.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extraction.RawDocument{Source: path}, fmt.Errorf("reading file: %w", err)
	}
	return l.LoadBytes(ctx, path, data, "")
}

// LoadBytes converts document bytes into text. An empty contentType is guessed from name.
func (l *Loader) LoadBytes(ctx context.Context, name string, data []byte, contentType string) (extraction.RawDocument, error) {
	doc := extraction.RawDocument{Source: name}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = ContentType(name, data)
	}

	var err error
	switch {
	case ct == "application/pdf":
		doc.Text, err = PDFText(data)
		if err == nil && strings.TrimSpace(doc.Text) == "" {
			doc.Text, err = l.transcribe(ctx, data, ct, ErrNoTextLayer)
		}
	case ct == "text/csv":
		doc.Text, err = CSVText(data)
	case strings.HasPrefix(ct, "text/"):
		doc.Text = string(data)
	case strings.HasPrefix(ct, "image/"):
		doc.Text, err = l.transcribe(ctx, data, ct, ErrUnsupported)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupported, ct)
	}
	if err != nil {
		return doc, fmt.Errorf("loading %s: %w", name, err)
	}
	return doc, nil
}

func (l *Loader) transcribe(ctx context.Context, data []byte, contentType string, missing error) (string, error) {
	if l.transcriber == nil {
		return "", fmt.Errorf("%w: %s needs a transcriber", missing, contentType)
	}
	text, err := l.transcriber.Transcribe(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("transcribing: %w", err)
	}
	return text, nil
}
