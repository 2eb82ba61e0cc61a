package preprocess

import (
	"time"

	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

// Params tune one transform. Zero fields take the pool defaults.
type Params struct {
	MaxWidth int
	Quality  float64
}

// Input is one image submitted for preprocessing. Submit takes ownership of
// Data: callers must not modify it afterwards.
type Input struct {
	Data   []byte
	Name   string
	Type   string
	Params Params
}

type task struct {
	id          uuid.UUID
	input       Input
	future      *Future
	submittedAt time.Time
}

// taskQueue holds tasks waiting for a free slot, oldest first.
type taskQueue struct {
	items []*task
}

func (q *taskQueue) push(t *task) {
	q.items = append(q.items, t)
}

func (q *taskQueue) pop() *task {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t
}

func (q *taskQueue) len() int {
	return len(q.items)
}

// drain empties the queue and returns its tasks in submission order.
func (q *taskQueue) drain() []*task {
	out := q.items
	q.items = nil
	return out
}
