package handlers

import (
	"net/http"
	"strconv"

	"railperf-gateway/internal/station"
)

// StationHandler serves station autocomplete lookups.
type StationHandler struct {
	Directory *station.Directory
}

func NewStationHandler(d *station.Directory) *StationHandler {
	return &StationHandler{Directory: d}
}

// Search handles GET /api/stations?q=&limit=.
func (h *StationHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	results := h.Directory.Search(q, limit)
	if results == nil {
		results = []station.Station{}
	}
	writeJSON(w, http.StatusOK, results)
}
