package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"pgshortener/internal/cache"
	"pgshortener/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server when REDIS_TEST_ADDR is set, e.g. localhost:6379.
func newLiveCache(t *testing.T, ttl time.Duration) *cache.Redis {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	c := cache.NewRedis(&redis.Options{Addr: addr}, ttl)
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedis_SetGetDelete(t *testing.T) {
	c := newLiveCache(t, time.Minute)
	ctx := context.Background()

	created := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	record := &domain.URLRecord{
		ID:          5,
		LongURL:     "https://example.com",
		ShortCode:   "cache123",
		CreatedAt:   created,
		UpdatedAt:   created,
		AccessCount: 12,
	}
	require.NoError(t, c.Set(ctx, record))
	t.Cleanup(func() { _ = c.Delete(context.Background(), "cache123") })

	got, err := c.Get(ctx, "cache123")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, "https://example.com", got.LongURL)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Zero(t, got.AccessCount, "access count is not cached")

	require.NoError(t, c.Delete(ctx, "cache123"))
	_, err = c.Get(ctx, "cache123")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestRedis_Expiry(t *testing.T) {
	c := newLiveCache(t, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &domain.URLRecord{ShortCode: "expire12", LongURL: "https://example.com"}))

	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "expire12")
		return err == cache.ErrMiss
	}, 2*time.Second, 50*time.Millisecond)
}

func TestRedis_Unreachable(t *testing.T) {
	c := cache.NewRedis(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}, time.Minute)
	defer c.Close()

	_, err := c.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrMiss)
}
