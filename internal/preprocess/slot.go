package preprocess

import (
	"context"
	"fmt"

	"github.com/fhuszti/picsee-preprocessor/internal/api_context"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/protocol"
)

type slotState int

const (
	slotIdle slotState = iota
	slotBusy
	slotReplacing
	slotClosed
)

func (s slotState) String() string {
	switch s {
	case slotIdle:
		return "idle"
	case slotBusy:
		return "busy"
	case slotReplacing:
		return "replacing"
	default:
		return "closed"
	}
}

// slot pairs one execution context with at most one active task. Every field
// is guarded by Pool.mu.
type slot struct {
	id    int
	state slotState
	// gen changes whenever the context is replaced; events tagged with an
	// older generation are stale.
	gen     uint64
	exec    port.Executor
	active  *task
	timer   Timer
	respawn Timer
}

// spawn binds a fresh execution context to s. On failure the slot stays out
// of rotation in the replacing state.
func (p *Pool) spawn(s *slot) error {
	s.gen++
	gen := s.gen
	id := s.id

	exec, err := p.factory(func(ev port.ExecEvent) {
		p.handle(id, gen, ev)
	})
	if err != nil {
		s.exec = nil
		s.state = slotReplacing
		return err
	}
	s.exec = exec
	s.state = slotIdle
	return nil
}

// assign hands t to the idle slot s: ownership of the input bytes moves to the
// execution context and the deadline is armed.
func (p *Pool) assign(s *slot, t *task) {
	s.active = t
	s.state = slotBusy

	req := protocol.Request{
		TaskID:     t.id,
		Data:       t.input.Data,
		SourceName: t.input.Name,
		SourceType: t.input.Type,
		MaxWidth:   t.input.Params.MaxWidth,
		Quality:    t.input.Params.Quality,
	}
	t.input.Data = nil

	gen, taskID := s.gen, t.id
	s.timer = p.clock.AfterFunc(p.cfg.TaskTimeout, func() {
		p.expire(s.id, gen, taskID)
	})

	ctx := api_context.WithTaskID(context.Background(), t.id)
	logger.Debugf(ctx, "task assigned to slot %d (generation %d, waited %s)", s.id, s.gen, p.clock.Now().Sub(t.submittedAt))

	if err := s.exec.Send(req); err != nil {
		p.failAndReplace(s, ErrTransfer, fmt.Sprintf("failed to send task to execution context: %v", err))
	}
}

// complete settles the slot's task from a correlated response. Responses for
// any other task are dropped without side effects.
func (p *Pool) complete(s *slot, resp protocol.Response) {
	t := s.active
	if t == nil || t.id != resp.TaskID {
		p.stats.StaleMessages++
		logger.Debugf(context.Background(), "slot %d discarded response for task %s", s.id, resp.TaskID)
		return
	}

	p.clearTimer(s)
	s.active = nil
	s.state = slotIdle

	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "failed to convert image"
		}
		p.reject(t, ErrTransform, msg)
		return
	}

	p.resolve(t, Result{
		TaskID:        t.id,
		Data:          resp.Data,
		Name:          resp.OutputName,
		Type:          resp.OutputType,
		Width:         resp.Width,
		Height:        resp.Height,
		OriginalSize:  resp.OriginalSize,
		ProcessedSize: resp.ProcessedSize,
	})
}

// failAndReplace rejects the slot's task (if any) with kind and swaps in a
// fresh execution context.
func (p *Pool) failAndReplace(s *slot, kind error, msg string) {
	t := s.active
	p.clearTimer(s)
	s.active = nil

	p.replace(s)

	if t != nil {
		p.reject(t, kind, msg)
	}
}

// replace destroys the current context and starts a new one. Contexts are
// never reused after a hard failure.
func (p *Pool) replace(s *slot) {
	ctx := context.Background()
	old := s.exec
	s.exec = nil
	s.state = slotReplacing
	p.stats.Replacements++

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warnf(ctx, "slot %d: closing execution context failed: %v", s.id, err)
		}
	}

	if err := p.spawn(s); err != nil {
		logger.Errorf(ctx, "slot %d: could not start replacement execution context: %v", s.id, err)
		p.scheduleRespawn(s)
		return
	}
	logger.Warnf(ctx, "slot %d: execution context replaced (generation %d)", s.id, s.gen)
}

func (p *Pool) scheduleRespawn(s *slot) {
	gen := s.gen
	s.respawn = p.clock.AfterFunc(p.cfg.RespawnDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.terminated || s.gen != gen || s.state != slotReplacing {
			return
		}
		s.respawn = nil
		if err := p.spawn(s); err != nil {
			logger.Errorf(context.Background(), "slot %d: respawn failed: %v", s.id, err)
			p.scheduleRespawn(s)
			return
		}
		logger.Infof(context.Background(), "slot %d: execution context restarted", s.id)
		p.dispatch()
	})
}

func (p *Pool) clearTimer(s *slot) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
