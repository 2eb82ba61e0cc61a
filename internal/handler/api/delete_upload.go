package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fhuszti/picsee-preprocessor/internal/api_context"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
)

func DeleteUploadHandler(svc UploadSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, r, http.StatusBadRequest, "ID is required", nil)
			return
		}

		if err := svc.Remove(r.Context(), id); err != nil {
			if errors.Is(err, uploader.ErrItemNotFound) {
				WriteError(w, r, http.StatusNotFound, "Upload not found", err)
				return
			}
			WriteError(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to remove upload #%s", id), err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
		logger.Infof(r.Context(), "✅  Successfully removed upload #%s", id)
	}
}
