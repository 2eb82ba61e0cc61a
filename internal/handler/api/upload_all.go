package api

import (
	"errors"
	"net/http"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
)

type UploadAllResponse struct {
	Report  uploader.UploadReport `json:"report"`
	Summary uploader.Summary      `json:"summary"`
}

func UploadAllHandler(svc UploadSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.UploadAll(r.Context())
		switch {
		case errors.Is(err, uploader.ErrUploadInProgress):
			WriteError(w, r, http.StatusConflict, "An upload is already running", nil)
			return
		case errors.Is(err, uploader.ErrSessionClosed):
			WriteError(w, r, http.StatusServiceUnavailable, "Upload session is closed", nil)
			return
		case err != nil:
			WriteError(w, r, http.StatusInternalServerError, "Failed to upload files", err)
			return
		}

		RespondJSON(w, http.StatusOK, UploadAllResponse{Report: report, Summary: svc.Summary()})
		logger.Infof(r.Context(), "✅  Upload run finished: %d uploaded, %d failed", report.Uploaded, report.Failed)
	}
}
