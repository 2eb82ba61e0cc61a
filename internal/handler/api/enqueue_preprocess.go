package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/validation"
)

type EnqueuePreprocessRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,max=500,dive,required"`
}

type EnqueuePreprocessResponse struct {
	Enqueued int `json:"enqueued"`
}

// EnqueuePreprocessHandler schedules background conversion of objects that
// are already in the staging bucket.
func EnqueuePreprocessHandler(dispatcher port.TaskDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnqueuePreprocessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid request payload", err)
			return
		}

		if errs := validation.ValidateStruct(req); errs != nil {
			errsJSON, err := validation.ErrorsToJson(errs)
			if err != nil {
				WriteError(w, r, http.StatusInternalServerError, "failed to encode validation errors", err)
				return
			}
			RespondRawJSON(w, http.StatusBadRequest, []byte(errsJSON))
			logger.Warnf(r.Context(), "❌  Validation failed: %s", errsJSON)
			return
		}

		for i, key := range req.Keys {
			if err := dispatcher.EnqueuePreprocessImage(r.Context(), key); err != nil {
				WriteError(w, r, http.StatusInternalServerError, fmt.Sprintf("could not enqueue %q (%d enqueued before it)", key, i), err)
				return
			}
		}

		RespondJSON(w, http.StatusAccepted, EnqueuePreprocessResponse{Enqueued: len(req.Keys)})
		logger.Infof(r.Context(), "✅  Enqueued %d object(s) for preprocessing", len(req.Keys))
	}
}
