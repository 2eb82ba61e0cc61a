package task

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypePreprocessImage = "image:preprocess"

type PreprocessImagePayload struct {
	ObjectKey string `json:"object_key"`
}

// NewPreprocessImageTask creates an Asynq task converting one staged object.
func NewPreprocessImageTask(objectKey string) (*asynq.Task, error) {
	p := PreprocessImagePayload{ObjectKey: objectKey}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("could not marshal preprocess-image payload: %w", err)
	}
	return asynq.NewTask(TypePreprocessImage, data), nil
}

// ParsePreprocessImagePayload parses the task payload to PreprocessImagePayload.
func ParsePreprocessImagePayload(t *asynq.Task) (PreprocessImagePayload, error) {
	var p PreprocessImagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return PreprocessImagePayload{}, fmt.Errorf("could not unmarshal payload: %w", err)
	}
	if p.ObjectKey == "" {
		return PreprocessImagePayload{}, fmt.Errorf("payload has no object key")
	}
	return p, nil
}
