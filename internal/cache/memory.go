package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
)

// MemoryIndex is the fallback when Redis is not configured. Entries live in
// this process only.
type MemoryIndex struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	location  string
	expiresAt time.Time
}

// compile-time check: *MemoryIndex must satisfy port.UploadIndex
var _ port.UploadIndex = (*MemoryIndex)(nil)

func NewMemoryIndex(ttl time.Duration) *MemoryIndex {
	return &MemoryIndex{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryIndex) Lookup(_ context.Context, fingerprint string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[fingerprint]
	if !ok {
		return "", false, nil
	}
	if m.ttl > 0 && !m.now().Before(e.expiresAt) {
		delete(m.entries, fingerprint)
		return "", false, nil
	}
	return e.location, true, nil
}

func (m *MemoryIndex) Remember(_ context.Context, fingerprint, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[fingerprint] = memoryEntry{location: location, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryIndex) Forget(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, fingerprint)
	return nil
}
