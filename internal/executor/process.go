package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/protocol"
)

// ProcessConfig describes the transformer binary to launch per context.
type ProcessConfig struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
}

// Process drives one transformer child process over newline-delimited JSON on
// its stdin/stdout. Any broken exchange or early exit is reported once and the
// child is never reused.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *tailBuffer
	emit    func(port.ExecEvent)
	mailbox chan protocol.Request

	quit      chan struct{}
	closeOnce sync.Once
	failOnce  sync.Once
	readDone  chan struct{}
}

// ProcessFactory builds child-process execution contexts from cfg.
func ProcessFactory(cfg ProcessConfig) port.ExecutorFactory {
	return func(emit func(port.ExecEvent)) (port.Executor, error) {
		return StartProcess(cfg, emit)
	}
}

func StartProcess(cfg ProcessConfig, emit func(port.ExecEvent)) (*Process, error) {
	if cfg.Path == "" {
		return nil, errors.New("executor: transformer path is required")
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	tail := &tailBuffer{max: 4096}
	cmd.Stderr = tail

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executor: start %s: %w", cfg.Path, err)
	}

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		stderr:   tail,
		emit:     emit,
		mailbox:  make(chan protocol.Request, 1),
		quit:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go p.writeLoop(protocol.NewEncoder(stdin))
	go p.readLoop(protocol.NewDecoder(stdout))
	go p.waitLoop()

	logger.Debugf(context.Background(), "transformer process started (pid %d)", cmd.Process.Pid)
	return p, nil
}

func (p *Process) Send(req protocol.Request) error {
	select {
	case <-p.quit:
		return ErrClosed
	default:
	}
	select {
	case p.mailbox <- req:
		return nil
	default:
		return ErrBusy
	}
}

// Close kills the child. Pending work is abandoned.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		close(p.quit)
		_ = p.stdin.Close()
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Warnf(context.Background(), "killing transformer process %d: %v", p.cmd.Process.Pid, err)
		}
	})
	return nil
}

func (p *Process) closed() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

// fail reports the first hard failure only; later ones are consequences.
func (p *Process) fail(kind port.ExecEventKind, msg string) {
	if p.closed() {
		return
	}
	p.failOnce.Do(func() {
		p.emit(port.ExecEvent{Kind: kind, Message: msg})
	})
}

func (p *Process) writeLoop(enc *protocol.Encoder) {
	for {
		select {
		case <-p.quit:
			return
		case req := <-p.mailbox:
			if err := enc.Encode(req); err != nil {
				p.fail(port.ExecTransferFailed, fmt.Sprintf("failed to send image to transformer: %v", err))
				return
			}
		}
	}
}

func (p *Process) readLoop(dec *protocol.Decoder) {
	defer close(p.readDone)
	for {
		resp, err := dec.DecodeResponse()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			p.fail(port.ExecTransferFailed, fmt.Sprintf("failed to read transformer response: %v", err))
			return
		}
		if p.closed() {
			return
		}
		p.emit(port.ExecEvent{Kind: port.ExecResponse, Response: resp})
	}
}

// waitLoop reaps the child once stdout is drained; Wait closes the pipe, so it
// must not run before readLoop is done.
func (p *Process) waitLoop() {
	<-p.readDone
	err := p.cmd.Wait()

	msg := "transformer process exited"
	if err != nil {
		msg = fmt.Sprintf("transformer process exited: %v", err)
	}
	if tail := strings.TrimSpace(p.stderr.String()); tail != "" {
		msg += ": " + tail
	}
	p.fail(port.ExecFault, msg)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
