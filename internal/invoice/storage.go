package invoice

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Storage archives the original bytes of uploaded invoices so an extraction
// can be checked against the document it came from
type Storage interface {
	// Save archives an upload under name and returns the name to fetch it by
	Save(name string, data []byte) (string, error)

	// Get reads an archived upload. Unknown names give ErrNotFound.
	Get(name string) ([]byte, error)

	// Delete drops an upload whose extraction could not be stored
	Delete(name string) error
}

// LocalStorage keeps uploads as flat files in one directory
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the upload directory if needed
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// archivePath confines every name to the upload directory
func (l *LocalStorage) archivePath(name string) (string, string) {
	base := filepath.Base(name)
	return base, filepath.Join(l.dir, base)
}

// Save writes the upload, replacing an earlier one with the same name
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	base, path := l.archivePath(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("archiving upload %s: %w", base, err)
	}
	return base, nil
}

func (l *LocalStorage) Get(name string) ([]byte, error) {
	base, path := l.archivePath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("upload %s: %w", base, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", base, err)
	}
	return data, nil
}

func (l *LocalStorage) Delete(name string) error {
	base, path := l.archivePath(name)
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload %s: %w", base, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("removing upload %s: %w", base, err)
	}
	return nil
}
