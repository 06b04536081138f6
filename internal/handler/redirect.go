package handler

import (
	"net/http"
)

// Redirect handles GET /s/{code} requests.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code, ok := h.pathCode(w, r)
	if !ok {
		return
	}

	record, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, r, err, "resolve URL")
		return
	}

	http.Redirect(w, r, record.LongURL, http.StatusFound)
}
