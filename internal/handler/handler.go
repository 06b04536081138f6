package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pgshortener/internal/domain"
)

const maxBodyBytes = 1 << 20

// URLService defines the service interface.
// This allows testing handlers without real service implementation.
type URLService interface {
	Create(ctx context.Context, longURL string) (*domain.URLRecord, bool, error)
	Resolve(ctx context.Context, shortCode string) (*domain.URLRecord, error)
	GetStats(ctx context.Context, shortCode string) (*domain.URLRecord, error)
	Update(ctx context.Context, shortCode, longURL string) (*domain.URLRecord, error)
	Delete(ctx context.Context, shortCode string) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	service URLService
	baseURL string
}

// New creates a new Handler with the given dependencies.
func New(service URLService, baseURL string) *Handler {
	return &Handler{
		service: service,
		baseURL: baseURL,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// writeServiceError maps a service error to a response. action completes
// "failed to ..." in the 500 message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "short code not found")
	case errors.Is(err, domain.ErrUnavailable):
		slog.WarnContext(r.Context(), "storage unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable, retry shortly")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeURLRequest reads a {"url": "..."} body and validates the URL. It
// writes the 400 response itself and returns false on failure.
func (h *Handler) decodeURLRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req URLRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "empty request body")
		return "", false
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return "", false
	}

	if err := validateURL(req.URL, h.baseURL); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return "", false
	}
	return req.URL, true
}

func (h *Handler) pathCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := r.PathValue("code")
	if err := validateShortCode(code); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return "", false
	}
	return code, true
}

func (h *Handler) recordResponse(record *domain.URLRecord) URLResponse {
	return URLResponse{
		ID:        record.ID,
		URL:       record.LongURL,
		ShortCode: record.ShortCode,
		ShortURL:  h.baseURL + "/s/" + record.ShortCode,
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
