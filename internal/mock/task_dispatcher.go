package mock

import (
	"context"
	"sync"
)

// MockDispatcher implements task dispatching for tests.
type MockDispatcher struct {
	mu sync.Mutex

	PreprocessCalled bool
	PreprocessKeys   []string
	PreprocessErr    error
}

func (m *MockDispatcher) EnqueuePreprocessImage(ctx context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PreprocessCalled = true
	if m.PreprocessErr != nil {
		return m.PreprocessErr
	}
	m.PreprocessKeys = append(m.PreprocessKeys, objectKey)
	return nil
}
