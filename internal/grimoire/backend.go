package grimoire

import (
	"context"
	"slices"
	"sync"
)

// Backend stores the encoded aggregate in a single slot.
type Backend interface {
	// Load returns the stored document, or nil if nothing has been saved.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored document.
	Save(ctx context.Context, data []byte) error

	// Clear removes the stored document.
	Clear(ctx context.Context) error
}

// MemoryBackend keeps the document in process memory.
// Used for tests and ephemeral sessions.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns a copy of the stored document.
func (m *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data), nil
}

// Save stores a copy of data.
func (m *MemoryBackend) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = slices.Clone(data)
	return nil
}

// Clear drops the stored document.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
