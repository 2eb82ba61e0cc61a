package mock

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/storage"
)

// Storage implements port.Storage in memory for tests.
type Storage struct {
	mu sync.Mutex

	// stored values
	Files        map[string][]byte
	ContentTypes map[string]string

	// captured inputs
	SavedKeys []string
	TTL       time.Duration

	// errors
	SaveErr func(fileKey string) error
	GetErr  error
	StatErr error
	LinkErr error

	// call counters
	SaveCalls int
	GetCalls  int
}

var _ port.Storage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{Files: map[string][]byte{}, ContentTypes: map[string]string{}}
}

// Put seeds an object.
func (m *Storage) Put(fileKey string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[fileKey] = data
	m.ContentTypes[fileKey] = contentType
}

func (m *Storage) File(fileKey string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[fileKey]
	return data, m.ContentTypes[fileKey], ok
}

func (m *Storage) SaveFile(ctx context.Context, fileKey string, reader io.Reader, fileSize int64, opts port.SaveOptions) error {
	m.mu.Lock()
	m.SaveCalls++
	failFn := m.SaveErr
	m.mu.Unlock()

	if failFn != nil {
		if err := failFn(fileKey); err != nil {
			return err
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if opts.Progress != nil {
		opts.Progress(int64(len(data)) / 2)
		opts.Progress(int64(len(data)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[fileKey] = data
	m.ContentTypes[fileKey] = opts.ContentType
	m.SavedKeys = append(m.SavedKeys, fileKey)
	return nil
}

func (m *Storage) GetFile(ctx context.Context, fileKey string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.Files[fileKey]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Storage) StatFile(ctx context.Context, fileKey string) (port.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatErr != nil {
		return port.FileInfo{}, m.StatErr
	}
	data, ok := m.Files[fileKey]
	if !ok {
		return port.FileInfo{}, storage.ErrObjectNotFound
	}
	return port.FileInfo{SizeBytes: int64(len(data)), ContentType: m.ContentTypes[fileKey]}, nil
}

func (m *Storage) PresignedDownloadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TTL = expiry
	if m.LinkErr != nil {
		return "", m.LinkErr
	}
	return "https://storage.example.com/" + fileKey, nil
}
