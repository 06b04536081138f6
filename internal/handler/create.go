package handler

import (
	"net/http"
)

// Create handles POST /shorten requests. A URL that was already shortened
// answers 200 with the existing record instead of 201.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	longURL, ok := h.decodeURLRequest(w, r)
	if !ok {
		return
	}

	record, created, err := h.service.Create(r.Context(), longURL)
	if err != nil {
		h.writeServiceError(w, r, err, "create short URL")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, h.recordResponse(record))
}
