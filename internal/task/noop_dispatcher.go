package task

import (
	"context"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
)

// NoopDispatcher drops every job; used when Redis is not configured.
type NoopDispatcher struct{}

var _ port.TaskDispatcher = (*NoopDispatcher)(nil)

func NewNoopDispatcher() *NoopDispatcher { return &NoopDispatcher{} }

func (d *NoopDispatcher) EnqueuePreprocessImage(ctx context.Context, objectKey string) error {
	logger.Warnf(ctx, "background jobs disabled, %q not enqueued", objectKey)
	return nil
}
