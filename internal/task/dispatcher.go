package task

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
)

// QueueImages is the asynq queue served by cmd/worker.
const QueueImages = "images"

const (
	maxRetry = 3
	// time allowed around the pool deadline for storage round trips
	ioAllowance = time.Minute
)

type Dispatcher struct {
	client      *asynq.Client
	taskTimeout time.Duration
}

// compile-time check
var _ port.TaskDispatcher = (*Dispatcher)(nil)

// NewDispatcher enqueues on Redis at addr. taskTimeout is the pool deadline of
// a single conversion; zero leaves the asynq default.
func NewDispatcher(addr, password string, taskTimeout time.Duration) *Dispatcher {
	c := asynq.NewClient(asynq.RedisClientOpt{Addr: addr, Password: password})
	return &Dispatcher{client: c, taskTimeout: taskTimeout}
}

// EnqueuePreprocessImage schedules the conversion of objectKey. An object
// that already has a live task is not enqueued twice.
func (d *Dispatcher) EnqueuePreprocessImage(ctx context.Context, objectKey string) error {
	t, err := NewPreprocessImageTask(objectKey)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueImages),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(preprocessTaskID(objectKey)),
	}
	if d.taskTimeout > 0 {
		opts = append(opts, asynq.Timeout(d.taskTimeout+ioAllowance))
	}

	if _, err := d.client.EnqueueContext(ctx, t, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Infof(ctx, "%q is already scheduled for preprocessing", objectKey)
			return nil
		}
		return err
	}
	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

func preprocessTaskID(objectKey string) string {
	return TypePreprocessImage + ":" + objectKey
}
