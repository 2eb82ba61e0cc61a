package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

// UploadSession records calls made by the HTTP handlers.
type UploadSession struct {
	mu sync.Mutex

	// stored values
	AddOut      []uploader.Item
	AddRejected []error
	ItemsOut    []uploader.Item
	CountsOut   map[uploader.Filter]int
	SummaryOut  uploader.Summary
	ReportOut   uploader.UploadReport

	// captured inputs
	AddedFiles []uploader.File
	Filter     uploader.Filter
	RemovedID  uuid.UUID

	// errors
	RemoveErr error
	UploadErr error
}

func (m *UploadSession) AddFiles(ctx context.Context, files []uploader.File) ([]uploader.Item, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddedFiles = append(m.AddedFiles, files...)
	return m.AddOut, m.AddRejected
}

func (m *UploadSession) Items(filter uploader.Filter) []uploader.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Filter = filter
	return m.ItemsOut
}

func (m *UploadSession) Counts() map[uploader.Filter]int {
	return m.CountsOut
}

func (m *UploadSession) Summary() uploader.Summary {
	return m.SummaryOut
}

func (m *UploadSession) Remove(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemovedID = id
	return m.RemoveErr
}

func (m *UploadSession) UploadAll(ctx context.Context) (uploader.UploadReport, error) {
	if m.UploadErr != nil {
		return uploader.UploadReport{}, m.UploadErr
	}
	return m.ReportOut, nil
}
