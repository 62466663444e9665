package raster

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// Store reads and writes quality-scored rasters by path.
//
// Load and LoadWindow return *domain.MissingProductError when the path does
// not exist and *domain.CorruptProductError when it cannot be decoded. Save
// replaces the target atomically.
type Store interface {
	// Shape reads only the dimensions and georeference of path.
	Shape(path string) (Shape, error)
	Load(path string) (Scored, error)
	LoadWindow(path string, win Window) (Scored, error)
	Save(path string, s Scored) error
	// List returns the paths matching a filepath.Match pattern, sorted.
	List(pattern string) ([]string, error)
}

// Shape describes a stored raster without its pixels.
type Shape struct {
	W, H int
	Ref  GeoRef
}

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]Scored
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string]Scored)}
}

func (m *MemStore) Load(path string) (Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[filepath.Clean(path)]
	if !ok {
		return Scored{}, &domain.MissingProductError{Product: filepath.Base(path), Path: path}
	}
	return s, nil
}

func (m *MemStore) Shape(path string) (Shape, error) {
	s, err := m.Load(path)
	if err != nil {
		return Shape{}, err
	}
	return Shape{W: s.Width(), H: s.Height(), Ref: s.Value.Ref()}, nil
}

func (m *MemStore) LoadWindow(path string, win Window) (Scored, error) {
	s, err := m.Load(path)
	if err != nil {
		return Scored{}, err
	}
	out, err := s.Window(win)
	if err != nil {
		return Scored{}, &domain.CorruptProductError{Path: path, Err: err}
	}
	return out, nil
}

func (m *MemStore) Save(path string, s Scored) error {
	if !s.Value.SameShape(s.Score) {
		return fmt.Errorf("save %s: band shape mismatch", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[filepath.Clean(path)] = s
	return nil
}

func (m *MemStore) List(pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.items {
		ok, err := filepath.Match(filepath.Clean(pattern), p)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", pattern, err)
		}
		if ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of stored rasters.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
