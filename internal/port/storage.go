package port

import (
	"context"
	"io"
	"time"
)

type FileInfo struct {
	SizeBytes   int64
	ContentType string
}

// SaveOptions tune a single upload. Progress, when set, receives the running
// total of bytes sent.
type SaveOptions struct {
	ContentType string
	Progress    func(sent int64)
}

// Storage is a single bucket of the remote object store.
type Storage interface {
	SaveFile(ctx context.Context, fileKey string, reader io.Reader, fileSize int64, opts SaveOptions) error
	GetFile(ctx context.Context, fileKey string) (io.ReadCloser, error)
	StatFile(ctx context.Context, fileKey string) (FileInfo, error)
	PresignedDownloadURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error)
}
