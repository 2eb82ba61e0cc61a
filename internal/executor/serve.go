package executor

import (
	"errors"
	"fmt"
	"io"

	"github.com/fhuszti/picsee-preprocessor/internal/protocol"
)

// Serve answers requests read from r with runner until r is closed. It is the
// child side of a Process.
func Serve(r io.Reader, w io.Writer, runner Runner) error {
	dec := protocol.NewDecoder(r)
	enc := protocol.NewEncoder(w)
	for {
		req, err := dec.DecodeRequest()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(runner.Run(req)); err != nil {
			return fmt.Errorf("executor: write response: %w", err)
		}
	}
}
