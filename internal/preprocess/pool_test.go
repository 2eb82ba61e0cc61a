package preprocess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

func TestDefaultConcurrency(t *testing.T) {
	tests := []struct {
		cpus int
		want int
	}{
		{cpus: 0, want: 2},
		{cpus: 1, want: 2},
		{cpus: 3, want: 2},
		{cpus: 5, want: 3},
		{cpus: 8, want: 4},
		{cpus: 11, want: 6},
		{cpus: 64, want: 6},
	}
	for _, tc := range tests {
		if got := DefaultConcurrency(tc.cpus); got != tc.want {
			t.Errorf("DefaultConcurrency(%d) = %d, want %d", tc.cpus, got, tc.want)
		}
	}
}

func TestNew_ClampsConcurrency(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, 40, f, newFakeClock())
	if p.Size() != MaxConcurrency {
		t.Fatalf("expected %d slots, got %d", MaxConcurrency, p.Size())
	}
	if f.spawned() != MaxConcurrency {
		t.Fatalf("expected %d contexts, got %d", MaxConcurrency, f.spawned())
	}
}

func TestNew_FactoryErrorClosesStartedContexts(t *testing.T) {
	f := &fakeFactory{}
	calls := 0
	factory := func(emit func(port.ExecEvent)) (port.Executor, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("boom")
		}
		return f.build(emit)
	}

	if _, err := New(Config{Concurrency: 3}, factory, WithClock(newFakeClock())); err == nil {
		t.Fatal("expected error")
	}
	if !f.exec(0).isClosed() {
		t.Fatal("expected first context to be closed")
	}
}

func TestSubmit_AppliesDefaultParams(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, 2, f, newFakeClock())

	fut := p.Submit(Input{Data: []byte("x"), Name: "a.jpg", Type: "image/jpeg"})
	req, ok := f.holder(t, fut.ID()).last()
	if !ok {
		t.Fatal("no request sent")
	}
	if req.MaxWidth != DefaultMaxWidth || req.Quality != DefaultQuality {
		t.Fatalf("unexpected params: %d %v", req.MaxWidth, req.Quality)
	}
	if req.SourceName != "a.jpg" || req.SourceType != "image/jpeg" || string(req.Data) != "x" {
		t.Fatalf("unexpected request: %+v", req)
	}

	fut = p.Submit(Input{Data: []byte("y"), Params: Params{MaxWidth: 300, Quality: 0.5}})
	req, _ = f.holder(t, fut.ID()).last()
	if req.MaxWidth != 300 || req.Quality != 0.5 {
		t.Fatalf("explicit params not kept: %d %v", req.MaxWidth, req.Quality)
	}
}

func TestPool_QueuesBeyondCapacityInSubmissionOrder(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, 2, f, newFakeClock())

	futs := submitN(p, 5)
	checkInvariants(t, p)

	st := p.Stats()
	if st.Busy != 2 || st.Queued != 3 || st.Idle != 0 {
		t.Fatalf("unexpected stats after submit: %+v", st)
	}
	if got := len(f.sends()); got != 2 {
		t.Fatalf("expected 2 immediate assignments, got %d", got)
	}

	// Complete whichever task is running until everything is done.
	for i := range futs {
		f.holder(t, futs[i].ID()).succeed(futs[i].ID())
		checkInvariants(t, p)
	}

	sends := f.sends()
	if len(sends) != len(futs) {
		t.Fatalf("expected %d sends, got %d", len(futs), len(sends))
	}
	for i, fut := range futs {
		if sends[i] != fut.ID() {
			t.Fatalf("dispatch %d went to %s, want %s", i, sends[i], fut.ID())
		}
		res, err := outcome(t, fut)
		if err != nil {
			t.Fatalf("task %d: unexpected error %v", i, err)
		}
		if res.TaskID != fut.ID() || res.Name != "out.webp" || res.Width != 10 {
			t.Fatalf("task %d: unexpected result %+v", i, res)
		}
	}

	st = p.Stats()
	if st.Succeeded != 5 || st.Failed != 0 || st.Queued != 0 || st.Idle != 2 {
		t.Fatalf("unexpected final stats: %+v", st)
	}
}

func TestPool_ThirdTaskTakesFirstFreedSlot(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, 2, f, newFakeClock())

	futs := submitN(p, 3)
	a, b, c := futs[0], futs[1], futs[2]

	execA := f.holder(t, a.ID())
	execB := f.holder(t, b.ID())
	if execA == execB {
		t.Fatal("A and B must run on different slots")
	}
	if p.Stats().Queued != 1 {
		t.Fatal("C should be queued")
	}

	execA.succeed(a.ID())
	if req, _ := execA.last(); req.TaskID != c.ID() {
		t.Fatalf("C should be dispatched to A's slot, got %s", req.TaskID)
	}
	checkInvariants(t, p)

	execB.fail(b.ID(), "Processing error")
	execA.succeed(c.ID())

	// Replays must not settle anything twice.
	execA.succeed(a.ID())
	execB.succeed(b.ID())

	if _, err := outcome(t, a); err != nil {
		t.Fatalf("A: %v", err)
	}
	if _, err := outcome(t, b); !errors.Is(err, ErrTransform) {
		t.Fatalf("B: expected transform error, got %v", err)
	}
	if _, err := outcome(t, c); err != nil {
		t.Fatalf("C: %v", err)
	}

	st := p.Stats()
	if st.Succeeded != 2 || st.Failed != 1 || st.StaleMessages != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPool_TransformErrorKeepsSlot(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, 2, f, newFakeClock())

	bad := p.Submit(Input{Data: []byte("0x0")})
	exec := f.holder(t, bad.ID())
	exec.fail(bad.ID(), "invalid source image dimensions")

	_, err := outcome(t, bad)
	if !errors.Is(err, ErrTransform) || IsHardFailure(err) {
		t.Fatalf("expected soft transform error, got %v", err)
	}
	if err.Error() != "invalid source image dimensions" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	var te *TaskError
	if !errors.As(err, &te) || te.TaskID != bad.ID() {
		t.Fatalf("expected TaskError for %s, got %#v", bad.ID(), err)
	}

	if exec.isClosed() || f.spawned() != 2 || p.Stats().Replacements != 0 {
		t.Fatal("transform error must not replace the context")
	}

	next := submitN(p, 1)[0]
	if req, _ := exec.last(); req.TaskID != next.ID() {
		t.Fatal("slot should be reused for the next task")
	}
	exec.succeed(next.ID())
	if _, err := outcome(t, next); err != nil {
		t.Fatalf("next task: %v", err)
	}
}

func TestPool_TimeoutReplacesContextAndSlotIsReused(t *testing.T) {
	f := &fakeFactory{}
	clk := newFakeClock()
	p := newTestPool(t, 2, f, clk)

	slow := p.Submit(Input{Data: []byte("slow")})
	old := f.holder(t, slow.ID())

	clk.Advance(59 * time.Second)
	if isSettled(slow) {
		t.Fatal("task settled before its deadline")
	}

	clk.Advance(time.Second)
	_, err := outcome(t, slow)
	if !errors.Is(err, ErrTimeout) || !IsHardFailure(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !old.isClosed() {
		t.Fatal("timed out context must be destroyed")
	}
	if f.spawned() != 3 {
		t.Fatalf("expected a replacement context, spawned=%d", f.spawned())
	}

	// The destroyed context finishing late is ignored.
	old.succeed(slow.ID())
	if p.Stats().StaleMessages != 1 {
		t.Fatal("late response should be counted as stale")
	}

	// Slot 0 is first in dispatch order and now holds the replacement.
	next := submitN(p, 1)[0]
	repl := f.holder(t, next.ID())
	if repl != f.exec(2) {
		t.Fatal("next task should run on the replacement context")
	}
	repl.succeed(next.ID())
	if _, err := outcome(t, next); err != nil {
		t.Fatalf("task after timeout: %v", err)
	}

	st := p.Stats()
	if st.TimedOut != 1 || st.Replacements != 1 || st.Succeeded != 1 || st.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	checkInvariants(t, p)
}

func TestPool_LateDeadlineAfterSuccessIsIgnored(t *testing.T) {
	f := &fakeFactory{}
	clk := newFakeClock()
	p := newTestPool(t, 2, f, clk)

	fut := submitN(p, 1)[0]
	exec := f.holder(t, fut.ID())
	expired := clk.lastCallback(t)

	exec.succeed(fut.ID())
	res, err := outcome(t, fut)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The deadline callback lost the race and runs after the response.
	expired()

	if got, gotErr := outcome(t, fut); gotErr != nil || got.TaskID != res.TaskID {
		t.Fatalf("task settled twice: %+v, %v", got, gotErr)
	}
	if exec.isClosed() || f.spawned() != 2 {
		t.Fatalf("context must survive a stale deadline (closed=%v, spawned=%d)", exec.isClosed(), f.spawned())
	}

	// Same slot, same generation, next task: the stale callback still must
	// not touch it.
	next := submitN(p, 1)[0]
	if f.holder(t, next.ID()) != exec {
		t.Fatal("next task should reuse the first slot")
	}
	expired()
	if isSettled(next) {
		t.Fatal("stale deadline settled an unrelated task")
	}

	st := p.Stats()
	if st.Succeeded != 1 || st.Failed != 0 || st.TimedOut != 0 || st.Replacements != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	checkInvariants(t, p)
}

func TestPool_MismatchedResponseKeepsDeadline(t *testing.T) {
	f := &fakeFactory{}
	clk := newFakeClock()
	p := newTestPool(t, 2, f, clk)

	fut := submitN(p, 1)[0]
	exec := f.holder(t, fut.ID())

	exec.succeed(uuid.NewUUID())
	if isSettled(fut) {
		t.Fatal("mismatched response must not settle the task")
	}

	clk.Advance(time.Minute)
	if _, err := outcome(t, fut); !errors.Is(err, ErrTimeout) {
		t.Fatalf("deadline should still fire, got %v", err)
	}
}

func TestPool_SuccessCancelsDeadline(t *testing.T) {
	f := &fakeFactory{}
	clk := newFakeClock()
	p := newTestPool(t, 2, f, clk)

	fut := submitN(p, 1)[0]
	f.holder(t, fut.ID()).succeed(fut.ID())
	if clk.pending() != 0 {
		t.Fatalf("expected no armed timers, got %d", clk.pending())
	}

	clk.Advance(time.Hour)
	if st := p.Stats(); st.Replacements != 0 || st.TimedOut != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPool_SendFailureIsTransferError(t *testing.T) {
	f := &fakeFactory{sendErr: errors.New("pipe closed")}
	p := newTestPool(t, 2, f, newFakeClock())

	fut := submitN(p, 1)[0]
	_, err := outcome(t, fut)
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if !f.exec(0).isClosed() || f.spawned() != 3 {
		t.Fatal("context should have been replaced")
	}
	if st := p.Stats(); st.Idle != 2 || st.Replacements != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPool_ExecutorEventsAreHardFailures(t *testing.T) {
	tests := []struct {
		name string
		kind port.ExecEventKind
		want error
	}{
		{name: "transfer", kind: port.ExecTransferFailed, want: ErrTransfer},
		{name: "fault", kind: port.ExecFault, want: ErrExecutorFault},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeFactory{}
			p := newTestPool(t, 2, f, newFakeClock())

			futs := submitN(p, 3)
			exec := f.holder(t, futs[0].ID())
			other := f.holder(t, futs[1].ID())
			exec.emit(port.ExecEvent{Kind: tc.kind, Message: "worker died"})

			_, err := outcome(t, futs[0])
			if !errors.Is(err, tc.want) || err.Error() != "worker died" {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !exec.isClosed() || other.isClosed() {
				t.Fatal("only the failing context should be destroyed")
			}
			if isSettled(futs[1]) {
				t.Fatal("other slot must be unaffected")
			}
			// The queued task moves onto the replacement.
			if f.holder(t, futs[2].ID()) != f.exec(2) {
				t.Fatal("queued task should run on the replacement context")
			}
			checkInvariants(t, p)
		})
	}
}

func TestPool_RespawnRetriesAfterFactoryFailure(t *testing.T) {
	f := &fakeFactory{}
	clk := newFakeClock()
	p := newTestPool(t, 2, f, clk)

	futs := submitN(p, 3)
	f.mu.Lock()
	f.failNext = 2
	f.mu.Unlock()

	f.holder(t, futs[0].ID()).emit(port.ExecEvent{Kind: port.ExecFault})
	if st := p.Stats(); st.Replacing != 1 || st.Queued != 1 {
		t.Fatalf("expected one slot out of rotation, got %+v", st)
	}

	clk.Advance(time.Second)
	if st := p.Stats(); st.Replacing != 1 {
		t.Fatalf("second spawn attempt should also fail, got %+v", st)
	}

	clk.Advance(time.Second)
	if st := p.Stats(); st.Replacing != 0 || st.Busy != 2 || st.Queued != 0 {
		t.Fatalf("slot should be back and working, got %+v", st)
	}
	f.holder(t, futs[2].ID()).succeed(futs[2].ID())
	if _, err := outcome(t, futs[2]); err != nil {
		t.Fatalf("queued task: %v", err)
	}
}

func TestPool_TerminateRejectsEverythingOnce(t *testing.T) {
	f := &fakeFactory{}
	clk := newFakeClock()
	p := newTestPool(t, 2, f, clk)

	futs := submitN(p, 4)
	running := f.holder(t, futs[0].ID())

	p.Terminate()
	p.Terminate()

	for i, fut := range futs {
		_, err := outcome(t, fut)
		if !errors.Is(err, ErrTerminated) {
			t.Fatalf("task %d: expected terminated, got %v", i, err)
		}
	}
	for i := 0; i < f.spawned(); i++ {
		if !f.exec(i).isClosed() {
			t.Fatalf("context %d left running", i)
		}
	}
	if clk.pending() != 0 {
		t.Fatal("terminate must cancel every deadline")
	}

	// Nothing after terminate can change a settled task.
	running.succeed(futs[0].ID())
	clk.Advance(time.Hour)

	st := p.Stats()
	if st.Failed != 4 || st.Succeeded != 0 || !st.Terminated || st.Queued != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	late := p.Submit(Input{Data: []byte("late")})
	_, err := late.Wait(context.Background())
	if !errors.Is(err, ErrTerminated) {
		t.Fatalf("submit after terminate: expected terminated, got %v", err)
	}
	if st := p.Stats(); st.Submitted != 4 || st.Queued != 0 {
		t.Fatalf("late submission must not be queued: %+v", st)
	}
	if len(f.sends()) != 2 {
		t.Fatal("late submission must never reach an execution context")
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, 2, f, newFakeClock())

	fut := submitN(p, 1)[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fut.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if isSettled(fut) {
		t.Fatal("abandoning Wait must not settle the task")
	}
}
