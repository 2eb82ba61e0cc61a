package port

import "context"

// TaskDispatcher hands object keys to the background worker.
type TaskDispatcher interface {
	EnqueuePreprocessImage(ctx context.Context, objectKey string) error
}
