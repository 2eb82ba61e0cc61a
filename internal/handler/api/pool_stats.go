package api

import "net/http"

func PoolStatsHandler(pool PoolStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		RespondJSON(w, http.StatusOK, pool.Stats())
	}
}
