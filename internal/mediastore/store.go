// Package mediastore provides a self-deleting staging area for media
// files downloaded during one delivery attempt. A Store is exclusively
// owned by the attempt that created it and must be closed on every exit
// path; Close removes everything the store ever held.
package mediastore

import (
	"fmt"
	"os"
	"sync"
)

// Store is a scoped temporary directory. The zero value is not usable;
// create one with New.
type Store struct {
	dir       string
	closeOnce sync.Once
	closeErr  error
}

// New creates a staging directory under the system temp dir.
func New() (*Store, error) {
	dir, err := os.MkdirTemp("", "despacho-media-*")
	if err != nil {
		return nil, fmt.Errorf("create media store: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the staging directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Close deletes the staging directory and everything in it.
// Idempotent: only the first call does work, later calls return the
// same result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = os.RemoveAll(s.dir)
	})
	return s.closeErr
}
