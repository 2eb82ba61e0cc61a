package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/task"
	"github.com/fhuszti/picsee-preprocessor/internal/usecase/staging"
)

// PreprocessImageHandler handles an image:preprocess task.
// Missing objects and undecodable images are not retried.
func PreprocessImageHandler(ctx context.Context, p task.PreprocessImagePayload, svc staging.Preprocessor) error {
	out, err := svc.PreprocessObject(ctx, staging.PreprocessObjectInput{ObjectKey: p.ObjectKey})
	if err != nil {
		if errors.Is(err, staging.ErrObjectNotFound) || errors.Is(err, preprocess.ErrTransform) {
			logger.Warnf(ctx, "❌  Giving up on %q: %v", p.ObjectKey, err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		logger.Errorf(ctx, "❌  Failed to preprocess %q: %v", p.ObjectKey, err)
		return err
	}

	logger.Infof(ctx, "✅  Successfully preprocessed %q into %q", p.ObjectKey, out.ObjectKey)
	return nil
}
