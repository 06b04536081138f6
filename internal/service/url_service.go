package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pgshortener/internal/cache"
	"pgshortener/internal/domain"
	"pgshortener/internal/repository"
)

const maxRetries = 5

// CodeGenerator defines the interface for short code generation.
type CodeGenerator interface {
	Generate() string
}

// Option configures optional URLService collaborators.
type Option func(*URLService)

// WithCache serves resolves from c and keeps it in step with updates and
// deletes.
func WithCache(c cache.Cache) Option {
	return func(s *URLService) { s.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *URLService) { s.logger = l }
}

// URLService handles URL shortening business logic.
type URLService struct {
	repo      repository.Repository
	generator CodeGenerator
	clock     domain.Clock
	cache     cache.Cache
	logger    *slog.Logger
}

// NewURLService creates a new URLService.
func NewURLService(repo repository.Repository, generator CodeGenerator, clock domain.Clock, opts ...Option) *URLService {
	s := &URLService{
		repo:      repo,
		generator: generator,
		clock:     clock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create shortens longURL. If the URL was shortened before, the existing
// record is returned with its access counted and created is false.
func (s *URLService) Create(ctx context.Context, longURL string) (record *domain.URLRecord, created bool, err error) {
	existing, err := s.repo.FindByURL(ctx, longURL)
	if err == nil {
		if err := s.repo.IncrementAccessCount(ctx, existing.ShortCode); err != nil {
			s.logger.Warn("increment access count", "shortCode", existing.ShortCode, "error", err)
		} else {
			existing.AccessCount++
		}
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("finding url: %w", err)
	}

	now := s.clock.Now()

	for attempt := 0; attempt < maxRetries; attempt++ {
		record := &domain.URLRecord{
			ShortCode: s.generator.Generate(),
			LongURL:   longURL,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := s.repo.SaveIfNotExists(ctx, record)
		if err == nil {
			return record, true, nil
		}

		if errors.Is(err, domain.ErrCodeExists) {
			continue // Collision, retry with new code
		}

		return nil, false, fmt.Errorf("saving record: %w", err)
	}

	return nil, false, errors.New("max retries exceeded: unable to generate unique code")
}

// Resolve returns the record for the given short code and counts the
// access. The returned record does not carry the access count.
// Returns domain.ErrNotFound if not found.
func (s *URLService) Resolve(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	record, err := s.lookup(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if err := s.repo.IncrementAccessCount(ctx, shortCode); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted since it was cached.
			s.evict(ctx, shortCode)
			return nil, err
		}
		s.logger.Warn("increment access count", "shortCode", shortCode, "error", err)
	}

	record.AccessCount = 0
	return record, nil
}

// GetStats returns the full record, including the access count, for the
// given short code. Returns domain.ErrNotFound if not found.
func (s *URLService) GetStats(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	return s.repo.FindByShortCode(ctx, shortCode)
}

// Update points shortCode at longURL.
// Returns domain.ErrNotFound if not found.
func (s *URLService) Update(ctx context.Context, shortCode, longURL string) (*domain.URLRecord, error) {
	record, err := s.repo.UpdateURL(ctx, shortCode, longURL, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.evict(ctx, shortCode)
	return record, nil
}

// Delete removes shortCode. Returns domain.ErrNotFound if not found.
func (s *URLService) Delete(ctx context.Context, shortCode string) error {
	if err := s.repo.Delete(ctx, shortCode); err != nil {
		return err
	}
	s.evict(ctx, shortCode)
	return nil
}

// lookup reads through the cache. Cache failures fall back to the
// repository.
func (s *URLService) lookup(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	if s.cache == nil {
		return s.repo.FindByShortCode(ctx, shortCode)
	}

	record, err := s.cache.Get(ctx, shortCode)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache get", "shortCode", shortCode, "error", err)
	}

	record, err = s.repo.FindByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, record); err != nil {
		s.logger.Warn("cache set", "shortCode", shortCode, "error", err)
	}
	return record, nil
}

func (s *URLService) evict(ctx context.Context, shortCode string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, shortCode); err != nil {
		s.logger.Warn("cache delete", "shortCode", shortCode, "error", err)
	}
}
