package preprocess

import (
	"context"
	"sync"

	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

// Result is a successfully transformed image.
type Result struct {
	TaskID        uuid.UUID
	Data          []byte
	Name          string
	Type          string
	Width         int
	Height        int
	OriginalSize  int64
	ProcessedSize int64
}

// Future is the single-settlement completion handle returned by Submit.
type Future struct {
	id   uuid.UUID
	done chan struct{}
	once sync.Once

	result Result
	err    error
}

func newFuture(id uuid.UUID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the task's correlation id.
func (f *Future) ID() uuid.UUID {
	return f.id
}

// Done is closed once the task is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles or ctx ends. Giving up on ctx does not
// cancel the task.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// settle records the outcome; only the first call has any effect.
func (f *Future) settle(res Result, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = res
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}
