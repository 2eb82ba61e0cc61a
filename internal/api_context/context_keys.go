package api_context

import (
	"context"

	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

type ctxKey string

const (
	IDKey          ctxKey = "id"
	TaskIDKey      ctxKey = "taskID"
	AuthSubjectKey ctxKey = "authSubject"
)

// WithID tags ctx with the id of the upload item being handled.
func WithID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, IDKey, id)
}

func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(IDKey).(uuid.UUID)
	return id, ok
}

// WithTaskID tags ctx with the correlation id of a preprocessing task.
func WithTaskID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, TaskIDKey, id)
}

func TaskIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(TaskIDKey).(uuid.UUID)
	return id, ok
}

func AuthSubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(AuthSubjectKey).(string)
	return sub, ok
}
