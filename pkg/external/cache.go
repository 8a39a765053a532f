package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// DefaultCacheTTL is how long guideline API responses are reused.
const DefaultCacheTTL = time.Hour

// Cache stores raw API response bodies under an explicit time-to-live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a size-bounded in-process LRU whose entries expire.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 512
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &MemoryCache{entries: entries, now: time.Now}, nil
}

// Get implements Cache. Expired entries are evicted on read.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expiresAt) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	m.entries.Add(key, memoryEntry{data: data, expiresAt: m.now().Add(ttl)})
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}

// cachedResponse is the envelope stored in Redis.
type cachedResponse struct {
	Data      json.RawMessage `json:"data"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// RedisCache shares API responses across processes.
type RedisCache struct {
	redis      *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.DefaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultCacheTTL
	}
	return &RedisCache{redis: client, prefix: "pharmaguard:cpic:", defaultTTL: defaultTTL}
}

// Get implements Cache. Corrupt or expired envelopes are deleted and reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	key = c.prefix + key

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached response: %w", err)
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

// Set implements Cache. data must be valid JSON.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	payload, err := json.Marshal(cachedResponse{
		Data:      json.RawMessage(data),
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}
	return c.redis.Set(ctx, c.prefix+key, payload, ttl).Err()
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

// TieredCache reads through its layers in order and back-fills faster
// layers on a hit in a slower one. Layer errors are logged and skipped.
type TieredCache struct {
	layers []Cache
	logger *logrus.Logger
}

// NewTieredCache creates a TieredCache; nil layers are ignored.
func NewTieredCache(logger *logrus.Logger, layers ...Cache) *TieredCache {
	t := &TieredCache{logger: logger}
	for _, l := range layers {
		if l != nil {
			t.layers = append(t.layers, l)
		}
	}
	return t
}

// Get implements Cache.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, layer := range t.layers {
		data, ok, err := layer.Get(ctx, key)
		if err != nil {
			t.logger.WithField("layer", i).WithError(err).Warn("Cache layer read failed")
			continue
		}
		if !ok {
			continue
		}
		for _, faster := range t.layers[:i] {
			_ = faster.Set(ctx, key, data, 0)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// Set implements Cache. It writes every layer and returns the first error.
func (t *TieredCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var firstErr error
	for i, layer := range t.layers {
		if err := layer.Set(ctx, key, data, ttl); err != nil {
			t.logger.WithField("layer", i).WithError(err).Warn("Cache layer write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
