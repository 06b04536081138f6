package handler

import (
	"net/http"
)

// Get handles GET /shorten/{code}: it returns the record and counts the
// access.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pathCode(w, r)
	if !ok {
		return
	}

	record, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, r, err, "resolve URL")
		return
	}

	h.writeJSON(w, http.StatusOK, h.recordResponse(record))
}

// Update handles PUT /shorten/{code}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pathCode(w, r)
	if !ok {
		return
	}
	longURL, ok := h.decodeURLRequest(w, r)
	if !ok {
		return
	}

	record, err := h.service.Update(r.Context(), code, longURL)
	if err != nil {
		h.writeServiceError(w, r, err, "update short URL")
		return
	}

	h.writeJSON(w, http.StatusOK, h.recordResponse(record))
}

// Delete handles DELETE /shorten/{code}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pathCode(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), code); err != nil {
		h.writeServiceError(w, r, err, "delete short URL")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
