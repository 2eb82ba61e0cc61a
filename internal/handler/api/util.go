package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError answers with {"error": msg} and logs err against the request
// context. Client errors log at warn level, server errors at error level.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	ctx := r.Context()
	log := logger.Errorf
	if status < http.StatusInternalServerError {
		log = logger.Warnf
	}
	if err != nil {
		log(ctx, "❌  %s %s: %s: %v", r.Method, r.URL.Path, msg, err)
	} else {
		log(ctx, "❌  %s %s: %s", r.Method, r.URL.Path, msg)
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0, must-revalidate")
	RespondJSON(w, status, ErrorResponse{Error: msg})
}

func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf(context.Background(), "❌  Failed to encode JSON response: %v", err)
	}
}

// RespondRawJSON writes an already encoded payload, e.g. validation errors.
func RespondRawJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		logger.Warnf(context.Background(), "❌  Failed to write JSON payload: %v", err)
	}
}
