// Package artifact provides opaque handles for processed photos. A handle
// carries an id and the arrival ordinal that fixes album order; only the
// store knows where the bytes live.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Handle references one processed photo artifact.
type Handle struct {
	// ID is the opaque artifact identifier.
	ID string
	// Ordinal is the arrival index within one workflow pass; it determines
	// the position of the photo inside the published album.
	Ordinal int
}

// Store persists processed image bytes under a scoped directory and resolves
// handles back to readable files. Artifacts are transient: they live exactly
// as long as the workflow pass that produced them.
type Store struct {
	dir string

	mu    sync.Mutex
	paths map[string]string
}

// NewStore creates the backing directory if needed and returns a store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact store: create dir: %w", err)
	}
	return &Store{dir: dir, paths: make(map[string]string)}, nil
}

// Put writes data as a new artifact and returns its handle.
func (s *Store) Put(data []byte, ordinal int) (Handle, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Handle{}, fmt.Errorf("artifact store: write: %w", err)
	}
	s.mu.Lock()
	s.paths[id] = path
	s.mu.Unlock()
	return Handle{ID: id, Ordinal: ordinal}, nil
}

// Path resolves a handle to the on-disk file backing it.
func (s *Store) Path(h Handle) (string, error) {
	s.mu.Lock()
	path, ok := s.paths[h.ID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("artifact store: unknown artifact %s", h.ID)
	}
	return path, nil
}

// Release removes the artifacts' storage. Unknown handles are ignored so
// release is safe to call twice.
func (s *Store) Release(handles ...Handle) {
	for _, h := range handles {
		s.mu.Lock()
		path, ok := s.paths[h.ID]
		delete(s.paths, h.ID)
		s.mu.Unlock()
		if ok {
			_ = os.Remove(path)
		}
	}
}

// Len reports the number of live artifacts, used by tests and diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
