package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stock-pattern/internal/models"
)

// Cache is a byte-oriented key/value cache with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache stores entries in Redis.
type RedisCache struct {
	client *redis.Client
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached value, reporting false on a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value under key for ttl.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns a live entry.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// CachedProvider serves repeated fetches of the same range from a Cache.
// Cache failures are logged and fall through to the upstream provider.
type CachedProvider struct {
	upstream Provider
	cache    Cache
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewCachedProvider wraps upstream with cache.
func NewCachedProvider(upstream Provider, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With().Str("component", "bar_cache").Logger(),
	}
}

// Name reports the upstream provider name.
func (c *CachedProvider) Name() string {
	return c.upstream.Name()
}

// CacheKey returns the cache key for a fetch.
func CacheKey(provider, ticker string, from, to time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%s:%s", provider, ticker, from.Format("20060102"), to.Format("20060102"))
}

// FetchBars returns cached bars when present and fetches otherwise.
func (c *CachedProvider) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	key := CacheKey(c.upstream.Name(), ticker, from, to)

	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	} else if ok {
		var bars []models.Bar
		if err := json.Unmarshal(data, &bars); err == nil {
			c.logger.Debug().Str("ticker", ticker).Int("bars", len(bars)).Msg("Cache hit")
			return bars, nil
		}
		c.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	}

	bars, err := c.upstream.FetchBars(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(bars); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return bars, nil
}
