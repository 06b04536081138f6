package repository

import (
	"context"
	"sync"
	"time"

	"pgshortener/internal/domain"
)

// MemoryRepository provides thread-safe in-memory storage.
type MemoryRepository struct {
	mu     sync.RWMutex
	data   map[string]*domain.URLRecord
	nextID int64
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data: make(map[string]*domain.URLRecord),
	}
}

// SaveIfNotExists atomically saves the record only if the short code
// doesn't already exist.
func (r *MemoryRepository) SaveIfNotExists(ctx context.Context, record *domain.URLRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[record.ShortCode]; exists {
		return domain.ErrCodeExists
	}

	r.nextID++
	record.ID = r.nextID
	r.data[record.ShortCode] = record.Clone()
	return nil
}

// FindByURL retrieves the oldest record for url.
func (r *MemoryRepository) FindByURL(ctx context.Context, url string) (*domain.URLRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *domain.URLRecord
	for _, record := range r.data {
		if record.LongURL != url {
			continue
		}
		if found == nil || record.ID < found.ID {
			found = record
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}

	return found.Clone(), nil
}

// FindByShortCode retrieves a record by its short code.
func (r *MemoryRepository) FindByShortCode(ctx context.Context, code string) (*domain.URLRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.data[code]
	if !exists {
		return nil, domain.ErrNotFound
	}

	return record.Clone(), nil
}

// IncrementAccessCount atomically increments the access counter.
func (r *MemoryRepository) IncrementAccessCount(ctx context.Context, code string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.data[code]
	if !exists {
		return domain.ErrNotFound
	}

	record.AccessCount++
	return nil
}

// UpdateURL replaces the long URL of an existing record.
func (r *MemoryRepository) UpdateURL(ctx context.Context, code, url string, updatedAt time.Time) (*domain.URLRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.data[code]
	if !exists {
		return nil, domain.ErrNotFound
	}

	record.LongURL = url
	record.UpdatedAt = updatedAt
	return record.Clone(), nil
}

// Delete removes the record for code.
func (r *MemoryRepository) Delete(ctx context.Context, code string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[code]; !exists {
		return domain.ErrNotFound
	}

	delete(r.data, code)
	return nil
}
