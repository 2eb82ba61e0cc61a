package api

import (
	"net/http"

	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
)

type ListUploadsResponse struct {
	Filter  uploader.Filter         `json:"filter"`
	Items   []uploader.Item         `json:"items"`
	Counts  map[uploader.Filter]int `json:"counts"`
	Summary uploader.Summary        `json:"summary"`
}

func ListUploadsHandler(svc UploadSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := uploader.ParseFilter(r.URL.Query().Get("filter"))
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		RespondJSON(w, http.StatusOK, ListUploadsResponse{
			Filter:  filter,
			Items:   svc.Items(filter),
			Counts:  svc.Counts(),
			Summary: svc.Summary(),
		})
	}
}
