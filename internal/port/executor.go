package port

import "github.com/fhuszti/picsee-preprocessor/internal/protocol"

type ExecEventKind int

const (
	// ExecResponse carries a decoded reply from the execution context.
	ExecResponse ExecEventKind = iota
	// ExecTransferFailed reports a message that could not be exchanged or decoded.
	ExecTransferFailed
	// ExecFault reports a crash or internal fault of the execution context.
	ExecFault
)

// ExecEvent is what an execution context reports back to its owning slot.
type ExecEvent struct {
	Kind     ExecEventKind
	Response protocol.Response
	Message  string
}

// Executor is an isolated execution context running one transform at a time.
//
// Send hands over ownership of req.Data and must not block. Close destroys the
// context and abandons in-flight work; it must be idempotent. Neither Send,
// Close nor the factory may invoke emit synchronously.
type Executor interface {
	Send(req protocol.Request) error
	Close() error
}

// ExecutorFactory builds a fresh execution context reporting through emit.
type ExecutorFactory func(emit func(ExecEvent)) (Executor, error)
