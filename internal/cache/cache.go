// Package cache keeps recently resolved records out of the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pgshortener/internal/domain"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the code is not cached.
var ErrMiss = errors.New("cache miss")

// Cache stores records by short code.
type Cache interface {
	Get(ctx context.Context, code string) (*domain.URLRecord, error)
	Set(ctx context.Context, record *domain.URLRecord) error
	Delete(ctx context.Context, code string) error
}

const keyPrefix = "pgshortener:url:"

// Redis is a Cache backed by a Redis server. Entries expire after ttl; a
// zero ttl keeps them until they are deleted.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a cache with a new client for opt.
func NewRedis(opt *redis.Options, ttl time.Duration) *Redis {
	return &Redis{client: redis.NewClient(opt), ttl: ttl}
}

// Ping checks the server is reachable.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Redis) Close() error {
	return c.client.Close()
}

// Get returns the cached record for code, or ErrMiss.
func (c *Redis) Get(ctx context.Context, code string) (*domain.URLRecord, error) {
	val, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", code, err)
	}

	var entry entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", code, err)
	}
	return entry.record(), nil
}

// Set caches record under its short code for the configured ttl.
func (c *Redis) Set(ctx context.Context, record *domain.URLRecord) error {
	data, err := json.Marshal(newEntry(record))
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", record.ShortCode, err)
	}
	if err := c.client.Set(ctx, keyPrefix+record.ShortCode, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", record.ShortCode, err)
	}
	return nil
}

// Delete evicts code. Evicting an absent code is not an error.
func (c *Redis) Delete(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", code, err)
	}
	return nil
}

// entry is the stored form. The access count is left out; it changes on
// every resolve and is always read from the database.
type entry struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	ShortCode string    `json:"shortCode"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newEntry(r *domain.URLRecord) entry {
	return entry{
		ID:        r.ID,
		URL:       r.LongURL,
		ShortCode: r.ShortCode,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (e entry) record() *domain.URLRecord {
	return &domain.URLRecord{
		ID:        e.ID,
		LongURL:   e.URL,
		ShortCode: e.ShortCode,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
