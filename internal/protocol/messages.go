// Package protocol defines the correlated request/response messages exchanged
// between a worker slot and its execution context.
package protocol

import (
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
	"github.com/fhuszti/picsee-preprocessor/internal/validation"
)

// Request asks an execution context to transform one image. Data is owned by
// the receiver once sent.
type Request struct {
	TaskID     uuid.UUID `json:"task_id" validate:"required"`
	Data       []byte    `json:"data" validate:"required"`
	SourceName string    `json:"source_name"`
	SourceType string    `json:"source_type"`
	MaxWidth   int       `json:"max_width" validate:"gt=0"`
	Quality    float64   `json:"quality" validate:"gt=0"`
}

// Validate checks the request fields before any decoding work starts.
func (r Request) Validate() error {
	if r.TaskID.IsNil() {
		return ErrMissingTaskID
	}
	return validation.ValidateStruct(r)
}

// Response is the single reply to a Request, tagged with the same TaskID.
type Response struct {
	TaskID        uuid.UUID `json:"task_id"`
	OK            bool      `json:"ok"`
	Data          []byte    `json:"data,omitempty"`
	OutputName    string    `json:"output_name,omitempty"`
	OutputType    string    `json:"output_type,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	OriginalSize  int64     `json:"original_size,omitempty"`
	ProcessedSize int64     `json:"processed_size,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Failure builds a failed response for the given correlation id.
func Failure(taskID uuid.UUID, msg string) Response {
	return Response{TaskID: taskID, OK: false, Error: msg}
}
