package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// NewObjectKey returns a fresh opaque object key.
func NewObjectKey() string {
	return uuid.NewString()
}

// LocalStore keeps object bytes on the local filesystem, one file per key.
// It stands in for the object storage collaborator behind the signed-URL
// boundary.
type LocalStore struct {
	dir string
}

// NewLocalStore constructs a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("storage: empty directory")
	}
	if errMkdir := os.MkdirAll(dir, 0o750); errMkdir != nil {
		return nil, fmt.Errorf("storage: create directory: %w", errMkdir)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("storage: invalid object key")
	}
	return filepath.Join(s.dir, key), nil
}

// Save writes the object bytes for a key, replacing any previous content.
func (s *LocalStore) Save(key string, r io.Reader) (int64, error) {
	path, errPath := s.path(key)
	if errPath != nil {
		return 0, errPath
	}
	tmp := path + ".tmp"
	f, errCreate := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if errCreate != nil {
		return 0, fmt.Errorf("storage: create object: %w", errCreate)
	}
	written, errCopy := io.Copy(f, r)
	if errClose := f.Close(); errCopy == nil {
		errCopy = errClose
	}
	if errCopy != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("storage: write object: %w", errCopy)
	}
	if errRename := os.Rename(tmp, path); errRename != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("storage: finalize object: %w", errRename)
	}
	return written, nil
}

// Open returns a reader over the object bytes for a key.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	path, errPath := s.path(key)
	if errPath != nil {
		return nil, errPath
	}
	f, errOpen := os.Open(path)
	if errOpen != nil {
		return nil, fmt.Errorf("storage: open object: %w", errOpen)
	}
	return f, nil
}

// Delete removes the object bytes for a key. Missing objects are not an error.
func (s *LocalStore) Delete(key string) error {
	path, errPath := s.path(key)
	if errPath != nil {
		return errPath
	}
	if errRemove := os.Remove(path); errRemove != nil && !os.IsNotExist(errRemove) {
		return fmt.Errorf("storage: delete object: %w", errRemove)
	}
	return nil
}
