// Package preprocess runs image transforms on a fixed set of isolated
// execution contexts.
//
// All bookkeeping (queue, slots, timers) is serialized through Pool.mu; the
// transforms themselves run in parallel inside the execution contexts.
// Every submitted task settles exactly once.
package preprocess

import (
	"context"
	"fmt"
	"sync"

	"github.com/fhuszti/picsee-preprocessor/internal/api_context"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

// Stats is a point-in-time view of the pool for display purposes.
type Stats struct {
	Size          int    `json:"size"`
	Idle          int    `json:"idle"`
	Busy          int    `json:"busy"`
	Replacing     int    `json:"replacing"`
	Queued        int    `json:"queued"`
	Submitted     uint64 `json:"submitted"`
	Succeeded     uint64 `json:"succeeded"`
	Failed        uint64 `json:"failed"`
	TimedOut      uint64 `json:"timed_out"`
	Replacements  uint64 `json:"replacements"`
	StaleMessages uint64 `json:"stale_messages"`
	Terminated    bool   `json:"terminated"`
}

type Option func(*Pool)

// WithClock replaces the wall clock used for deadlines.
func WithClock(c Clock) Option {
	return func(p *Pool) { p.clock = c }
}

type Pool struct {
	cfg     Config
	clock   Clock
	factory port.ExecutorFactory

	mu         sync.Mutex
	slots      []*slot
	queue      taskQueue
	terminated bool
	stats      Stats
}

// New starts cfg.Concurrency execution contexts built by factory.
func New(cfg Config, factory port.ExecutorFactory, opts ...Option) (*Pool, error) {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:     cfg,
		clock:   RealClock(),
		factory: factory,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < cfg.Concurrency; i++ {
		s := &slot{id: i}
		if err := p.spawn(s); err != nil {
			for _, started := range p.slots {
				_ = started.exec.Close()
			}
			return nil, fmt.Errorf("preprocess: start execution context %d: %w", i, err)
		}
		p.slots = append(p.slots, s)
	}

	logger.Infof(context.Background(), "image preprocessor started with %d slots (timeout %s)", cfg.Concurrency, cfg.TaskTimeout)
	return p, nil
}

// Size returns the fixed number of slots.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Submit queues in and returns immediately. After Terminate the returned
// future is already rejected with ErrTerminated.
func (p *Pool) Submit(in Input) *Future {
	id := uuid.NewUUID()
	f := newFuture(id)

	if in.Params.MaxWidth <= 0 {
		in.Params.MaxWidth = p.cfg.MaxWidth
	}
	if in.Params.Quality <= 0 {
		in.Params.Quality = p.cfg.Quality
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		f.settle(Result{}, &TaskError{TaskID: id, Kind: ErrTerminated, Message: "image preprocessor is terminated"})
		return f
	}

	p.queue.push(&task{id: id, input: in, future: f, submittedAt: p.clock.Now()})
	p.stats.Submitted++
	p.dispatch()
	return f
}

// Terminate rejects every queued and active task with ErrTerminated, destroys
// every execution context and closes the pool for good. In-flight work is
// abandoned. Calling it again is a no-op.
func (p *Pool) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return
	}
	p.terminated = true

	const msg = "processing queue has been terminated"
	for _, s := range p.slots {
		p.clearTimer(s)
		if s.respawn != nil {
			s.respawn.Stop()
			s.respawn = nil
		}
		if t := s.active; t != nil {
			s.active = nil
			p.reject(t, ErrTerminated, msg)
		}
		if s.exec != nil {
			if err := s.exec.Close(); err != nil {
				logger.Warnf(context.Background(), "slot %d: closing execution context failed: %v", s.id, err)
			}
			s.exec = nil
		}
		s.gen++
		s.state = slotClosed
	}

	for _, t := range p.queue.drain() {
		p.reject(t, ErrTerminated, msg)
	}

	logger.Info(context.Background(), "image preprocessor terminated")
}

// Stats returns current counters and slot occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.stats
	st.Size = len(p.slots)
	st.Queued = p.queue.len()
	st.Terminated = p.terminated
	for _, s := range p.slots {
		switch s.state {
		case slotIdle:
			st.Idle++
		case slotBusy:
			st.Busy++
		case slotReplacing:
			st.Replacing++
		}
	}
	return st
}

// dispatch hands the oldest queued tasks to idle slots, in slot order.
// Callers hold p.mu.
func (p *Pool) dispatch() {
	if p.terminated {
		return
	}
	for _, s := range p.slots {
		for s.state == slotIdle && p.queue.len() > 0 {
			p.assign(s, p.queue.pop())
		}
	}
}

// handle receives every event emitted by an execution context.
func (p *Pool) handle(slotID int, gen uint64, ev port.ExecEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated || slotID >= len(p.slots) {
		return
	}
	s := p.slots[slotID]
	if s.gen != gen {
		p.stats.StaleMessages++
		logger.Debugf(context.Background(), "slot %d ignored event from replaced execution context (generation %d)", slotID, gen)
		return
	}

	switch ev.Kind {
	case port.ExecResponse:
		p.complete(s, ev.Response)
	case port.ExecTransferFailed:
		p.failAndReplace(s, ErrTransfer, messageOr(ev.Message, "execution context message transfer failed"))
	default:
		p.failAndReplace(s, ErrExecutorFault, messageOr(ev.Message, "execution context failed while processing image"))
	}
	p.dispatch()
}

// expire fires when a task outlives its deadline. The context cannot be
// interrupted mid-computation, so it is replaced.
func (p *Pool) expire(slotID int, gen uint64, taskID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated || slotID >= len(p.slots) {
		return
	}
	s := p.slots[slotID]
	if s.gen != gen || s.active == nil || s.active.id != taskID {
		return
	}

	s.timer = nil
	p.stats.TimedOut++
	logger.Warnf(api_context.WithTaskID(context.Background(), taskID), "slot %d: task exceeded its %s deadline", slotID, p.cfg.TaskTimeout)
	p.failAndReplace(s, ErrTimeout, "image conversion timed out in execution context; retry or reduce the batch size")
	p.dispatch()
}

func (p *Pool) resolve(t *task, res Result) {
	if t.future.settle(res, nil) {
		p.stats.Succeeded++
	}
}

func (p *Pool) reject(t *task, kind error, msg string) {
	if !t.future.settle(Result{}, &TaskError{TaskID: t.id, Kind: kind, Message: msg}) {
		return
	}
	p.stats.Failed++
	ctx := api_context.WithTaskID(context.Background(), t.id)
	if kind == ErrTerminated {
		logger.Debugf(ctx, "task rejected: %s", msg)
		return
	}
	logger.Warnf(ctx, "task rejected: %s", msg)
}

func messageOr(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}
