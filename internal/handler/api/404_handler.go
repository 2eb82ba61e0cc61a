package api

import (
	"fmt"
	"net/http"
)

func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("%s %s does not exist", r.Method, r.URL.Path),
		})
	}
}
