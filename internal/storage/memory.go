package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStorage keeps objects in a map. FailGet and FailCopy let tests
// simulate an unavailable store.
type MemoryStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	FailGet  error
	FailCopy error
	copies   int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) Scheme() string { return "mem" }

func (m *MemoryStorage) Get(_ context.Context, loc Location) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailGet != nil {
		return nil, m.FailGet
	}
	data, ok := m.objects[loc.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Copy(_ context.Context, src, dst Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.copies++
	if m.FailCopy != nil {
		return m.FailCopy
	}
	data, ok := m.objects[src.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, src)
	}
	m.objects[dst.String()] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) Put(_ context.Context, loc Location, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[loc.String()] = append([]byte(nil), data...)
	return nil
}

// Has reports whether an object exists at loc.
func (m *MemoryStorage) Has(loc Location) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[loc.String()]
	return ok
}

// CopyCalls returns how many times Copy was attempted.
func (m *MemoryStorage) CopyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies
}
