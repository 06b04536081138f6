package handler

import (
	"net/http"
)

// Stats handles GET /shorten/{code}/stats requests.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pathCode(w, r)
	if !ok {
		return
	}

	record, err := h.service.GetStats(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, r, err, "get stats")
		return
	}

	h.writeJSON(w, http.StatusOK, StatsResponse{
		URLResponse: h.recordResponse(record),
		AccessCount: record.AccessCount,
	})
}
