package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrIO is returned when the manifest cannot be read, decoded or written.
var ErrIO = errors.New("manifest: io failure")

// Store loads and persists a manifest.
type Store interface {
	Load(ctx context.Context) (*Manifest, error)
	Save(ctx context.Context, m *Manifest) error
}

// FileStore keeps the manifest as a JSON file. Writes go to a sibling
// temporary file which is then renamed over the target.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the manifest location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the manifest. A missing file yields an empty manifest.
func (s *FileStore) Load(ctx context.Context) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, s.path, err)
	}

	m := New()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrIO, s.path, err)
	}
	return m, nil
}

// Save writes m atomically, replacing any previous manifest.
func (s *FileStore) Save(ctx context.Context, m *Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := m.MarshalIndent()
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrIO, err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
		}
	}

	tmp := s.path + "~"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", ErrIO, s.path, err)
	}
	return nil
}

// MemoryStore keeps the manifest in memory.
type MemoryStore struct {
	m     *Manifest
	saves int
	err   error
}

// NewMemoryStore returns a store seeded with a copy of m, which may be nil.
func NewMemoryStore(m *Manifest) *MemoryStore {
	if m == nil {
		m = New()
	}
	return &MemoryStore{m: m.Clone()}
}

// FailSaves makes every subsequent Save return err.
func (s *MemoryStore) FailSaves(err error) {
	s.err = err
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	return s.saves
}

// Load returns a copy of the stored manifest.
func (s *MemoryStore) Load(context.Context) (*Manifest, error) {
	return s.m.Clone(), nil
}

// Save replaces the stored manifest.
func (s *MemoryStore) Save(_ context.Context, m *Manifest) error {
	if s.err != nil {
		return fmt.Errorf("%w: %v", ErrIO, s.err)
	}
	s.m = m.Clone()
	s.saves++
	return nil
}
