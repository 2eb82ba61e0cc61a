package preprocess

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/protocol"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

// --- manual clock ---

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every due timer outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// lastCallback returns the function of the most recently armed timer, as if
// the timer had already fired and its callback were still on its way.
func (c *fakeClock) lastCallback(t *testing.T) func() {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatal("no timer armed")
	}
	return c.timers[len(c.timers)-1].f
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// --- scripted executors ---

type fakeExecutor struct {
	f    *fakeFactory
	emit func(port.ExecEvent)

	mu      sync.Mutex
	sent    []protocol.Request
	closed  bool
	sendErr error
}

func (e *fakeExecutor) Send(req protocol.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sendErr != nil {
		return e.sendErr
	}
	if e.closed {
		return errors.New("closed")
	}
	e.sent = append(e.sent, req)
	e.f.logSend(req.TaskID)
	return nil
}

func (e *fakeExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeExecutor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeExecutor) last() (protocol.Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sent) == 0 {
		return protocol.Request{}, false
	}
	return e.sent[len(e.sent)-1], true
}

func (e *fakeExecutor) succeed(id uuid.UUID) {
	e.emit(port.ExecEvent{Kind: port.ExecResponse, Response: protocol.Response{
		TaskID:        id,
		OK:            true,
		Data:          []byte("webp"),
		OutputName:    "out.webp",
		OutputType:    "image/webp",
		Width:         10,
		Height:        5,
		OriginalSize:  100,
		ProcessedSize: 4,
	}})
}

func (e *fakeExecutor) fail(id uuid.UUID, msg string) {
	e.emit(port.ExecEvent{Kind: port.ExecResponse, Response: protocol.Failure(id, msg)})
}

type fakeFactory struct {
	mu       sync.Mutex
	execs    []*fakeExecutor
	sendLog  []uuid.UUID
	failNext int
	sendErr  error
}

func (f *fakeFactory) build(emit func(port.ExecEvent)) (port.Executor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("spawn failed")
	}
	e := &fakeExecutor{f: f, emit: emit, sendErr: f.sendErr}
	f.execs = append(f.execs, e)
	return e, nil
}

func (f *fakeFactory) logSend(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLog = append(f.sendLog, id)
}

func (f *fakeFactory) sends() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.sendLog...)
}

func (f *fakeFactory) spawned() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

func (f *fakeFactory) exec(i int) *fakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execs[i]
}

// holder returns the live executor currently working on id.
func (f *fakeFactory) holder(t *testing.T, id uuid.UUID) *fakeExecutor {
	t.Helper()
	f.mu.Lock()
	execs := append([]*fakeExecutor(nil), f.execs...)
	f.mu.Unlock()
	for _, e := range execs {
		if req, ok := e.last(); ok && req.TaskID == id && !e.isClosed() {
			return e
		}
	}
	t.Fatalf("no live executor holds task %s", id)
	return nil
}

// --- helpers ---

func newTestPool(t *testing.T, size int, f *fakeFactory, clk *fakeClock) *Pool {
	t.Helper()
	p, err := New(Config{Concurrency: size, TaskTimeout: time.Minute, RespawnDelay: time.Second}, f.build, WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Terminate)
	return p
}

func submitN(p *Pool, n int) []*Future {
	out := make([]*Future, n)
	for i := range out {
		out[i] = p.Submit(Input{Data: []byte{byte(i)}, Name: "img.png", Type: "image/png"})
	}
	return out
}

func isSettled(f *Future) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

func outcome(t *testing.T, f *Future) (Result, error) {
	t.Helper()
	if !isSettled(f) {
		t.Fatalf("task %s not settled", f.ID())
	}
	return f.result, f.err
}

// checkInvariants asserts that every slot holds at most one task, busy slots
// hold exactly one, and no task is tracked twice.
func checkInvariants(t *testing.T, p *Pool) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := map[uuid.UUID]string{}
	for _, s := range p.slots {
		if (s.state == slotBusy) != (s.active != nil) {
			t.Fatalf("slot %d state %s with active=%v", s.id, s.state, s.active != nil)
		}
		if s.active != nil {
			if where, dup := seen[s.active.id]; dup {
				t.Fatalf("task %s tracked in slot %d and %s", s.active.id, s.id, where)
			}
			seen[s.active.id] = "slot"
		}
	}
	for _, qt := range p.queue.items {
		if where, dup := seen[qt.id]; dup {
			t.Fatalf("queued task %s also tracked in %s", qt.id, where)
		}
		seen[qt.id] = "queue"
	}
}
