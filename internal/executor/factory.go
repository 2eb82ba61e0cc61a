package executor

import (
	"fmt"

	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/transform"
)

const (
	KindLocal   = "local"
	KindProcess = "process"
)

// NewFactory picks the execution context implementation by name. Local
// contexts run the default pipeline in-process; process contexts spawn bin.
func NewFactory(kind, bin string) (port.ExecutorFactory, error) {
	switch kind {
	case "", KindLocal:
		return LocalFactory(transform.NewDefaultPipeline()), nil
	case KindProcess:
		if bin == "" {
			return nil, fmt.Errorf("executor %q needs a transformer binary", kind)
		}
		return ProcessFactory(ProcessConfig{Path: bin}), nil
	default:
		return nil, fmt.Errorf("unknown executor %q", kind)
	}
}
