package repository

import (
	"context"
	"time"

	"pgshortener/internal/domain"
)

// Repository defines the contract for URL storage operations.
// All implementations must be thread-safe for concurrent access.
type Repository interface {
	// SaveIfNotExists atomically saves the record only if the short code
	// doesn't already exist, and sets record.ID to the assigned id.
	// Returns domain.ErrCodeExists if taken.
	SaveIfNotExists(ctx context.Context, record *domain.URLRecord) error

	// FindByURL retrieves the oldest record shortening url.
	// Returns domain.ErrNotFound if the URL has not been shortened.
	FindByURL(ctx context.Context, url string) (*domain.URLRecord, error)

	// FindByShortCode retrieves a record by its short code.
	// Returns domain.ErrNotFound if the code doesn't exist.
	FindByShortCode(ctx context.Context, code string) (*domain.URLRecord, error)

	// IncrementAccessCount atomically increments the access counter.
	// Returns domain.ErrNotFound if the code doesn't exist.
	IncrementAccessCount(ctx context.Context, code string) error

	// UpdateURL points an existing short code at a new URL and returns the
	// updated record. Returns domain.ErrNotFound if the code doesn't exist.
	UpdateURL(ctx context.Context, code, url string, updatedAt time.Time) (*domain.URLRecord, error)

	// Delete removes the record for code.
	// Returns domain.ErrNotFound if the code doesn't exist.
	Delete(ctx context.Context, code string) error
}
