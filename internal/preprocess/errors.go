package preprocess

import (
	"errors"

	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

var (
	// ErrTransform means the pipeline rejected the input. The slot stays usable.
	ErrTransform = errors.New("preprocess: transform failed")
	// ErrTransfer means a message could not be exchanged with the execution context.
	ErrTransfer = errors.New("preprocess: message transfer failed")
	// ErrExecutorFault means the execution context crashed or reported an internal fault.
	ErrExecutorFault = errors.New("preprocess: execution context fault")
	// ErrTimeout means the task outlived its deadline.
	ErrTimeout = errors.New("preprocess: task timed out")
	// ErrTerminated means the pool is closed.
	ErrTerminated = errors.New("preprocess: pool terminated")
)

// TaskError is the rejection of a single task. It unwraps to one of the
// sentinel kinds above.
type TaskError struct {
	TaskID  uuid.UUID
	Kind    error
	Message string
}

func (e *TaskError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *TaskError) Unwrap() error {
	return e.Kind
}

// IsHardFailure reports whether err caused the execution context to be replaced.
func IsHardFailure(err error) bool {
	return errors.Is(err, ErrTransfer) || errors.Is(err, ErrExecutorFault) || errors.Is(err, ErrTimeout)
}
