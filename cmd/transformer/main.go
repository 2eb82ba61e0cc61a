package main

import (
	"context"
	"os"

	"github.com/fhuszti/picsee-preprocessor/internal/executor"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/transform"
)

// The transformer is spawned by the api and worker when EXECUTOR=process.
// stdout carries protocol frames, so logs go to stderr.
func main() {
	logger.InitWithWriter(os.Stderr)
	ctx := context.Background()

	if err := executor.Serve(os.Stdin, os.Stdout, transform.NewDefaultPipeline()); err != nil {
		logger.Errorf(ctx, "❌ transformer stopped: %v", err)
		os.Exit(1)
	}
}
