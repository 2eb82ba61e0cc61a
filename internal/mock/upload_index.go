package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
)

// UploadIndex implements port.UploadIndex for tests.
type UploadIndex struct {
	mu      sync.Mutex
	Entries map[string]string

	LookupErr   error
	RememberErr error
	ForgetErr   error

	Forgotten []string
}

var _ port.UploadIndex = (*UploadIndex)(nil)

func NewUploadIndex() *UploadIndex {
	return &UploadIndex{Entries: map[string]string{}}
}

func (m *UploadIndex) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return "", false, m.LookupErr
	}
	loc, ok := m.Entries[fingerprint]
	return loc, ok, nil
}

func (m *UploadIndex) Remember(ctx context.Context, fingerprint, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RememberErr != nil {
		return m.RememberErr
	}
	m.Entries[fingerprint] = location
	return nil
}

func (m *UploadIndex) Forget(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Forgotten = append(m.Forgotten, fingerprint)
	if m.ForgetErr != nil {
		return m.ForgetErr
	}
	delete(m.Entries, fingerprint)
	return nil
}

func (m *UploadIndex) Get(fingerprint string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.Entries[fingerprint]
	return loc, ok
}
