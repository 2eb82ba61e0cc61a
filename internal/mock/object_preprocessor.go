package mock

import (
	"context"

	"github.com/fhuszti/picsee-preprocessor/internal/usecase/staging"
)

type ObjectPreprocessor struct {
	Called bool
	Key    string
	Out    staging.PreprocessObjectOutput
	Err    error
}

func (m *ObjectPreprocessor) PreprocessObject(ctx context.Context, in staging.PreprocessObjectInput) (staging.PreprocessObjectOutput, error) {
	m.Called = true
	m.Key = in.ObjectKey
	return m.Out, m.Err
}
