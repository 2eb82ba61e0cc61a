// Package executor provides the execution contexts a preprocess slot runs its
// transforms in: a goroutine inside this process, or a dedicated child process.
package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/protocol"
)

var (
	ErrClosed = errors.New("executor: closed")
	ErrBusy   = errors.New("executor: a request is already pending")
)

// Runner performs one transform. transform.Pipeline satisfies it.
type Runner interface {
	Run(req protocol.Request) protocol.Response
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(req protocol.Request) protocol.Response

func (f RunnerFunc) Run(req protocol.Request) protocol.Response { return f(req) }

// Local runs transforms on its own goroutine. A panic inside the runner is
// reported as a fault and the goroutine stops accepting work.
type Local struct {
	runner  Runner
	emit    func(port.ExecEvent)
	mailbox chan protocol.Request
	quit    chan struct{}
	once    sync.Once
}

// LocalFactory builds in-process execution contexts around runner.
func LocalFactory(runner Runner) port.ExecutorFactory {
	return func(emit func(port.ExecEvent)) (port.Executor, error) {
		return StartLocal(runner, emit), nil
	}
}

func StartLocal(runner Runner, emit func(port.ExecEvent)) *Local {
	l := &Local{
		runner:  runner,
		emit:    emit,
		mailbox: make(chan protocol.Request, 1),
		quit:    make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Local) Send(req protocol.Request) error {
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}
	select {
	case l.mailbox <- req:
		return nil
	default:
		return ErrBusy
	}
}

func (l *Local) Close() error {
	l.once.Do(func() { close(l.quit) })
	return nil
}

func (l *Local) loop() {
	for {
		select {
		case <-l.quit:
			return
		case req := <-l.mailbox:
			resp, fault := l.run(req)
			select {
			case <-l.quit:
				return
			default:
			}
			if fault != "" {
				l.emit(port.ExecEvent{Kind: port.ExecFault, Message: fault})
				return
			}
			l.emit(port.ExecEvent{Kind: port.ExecResponse, Response: resp})
		}
	}
}

func (l *Local) run(req protocol.Request) (resp protocol.Response, fault string) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = fmt.Sprintf("execution context crashed: %v", rec)
		}
	}()
	return l.runner.Run(req), ""
}
