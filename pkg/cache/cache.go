package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"lms/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores opaque values under string keys. Versions are counters
// callers fold into their keys: bumping a version makes every entry built
// under the old one unreachable, including entries written late by readers
// that loaded their data before the bump.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Versions(ctx context.Context, keys ...string) ([]int64, error)
	Bump(ctx context.Context, key string, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// New returns a Redis-backed cache, or an in-memory one when Redis cannot
// be reached at startup.
func New(cfg *config.Config, logger *zap.Logger) Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Failed to connect to Redis, using in-memory cache",
			zap.String("host", cfg.RedisHost),
			zap.String("port", cfg.RedisPort),
			zap.Error(err),
		)
		_ = rdb.Close()
		return NewInMemory()
	}

	logger.Info("Redis cache initialized", zap.String("addr", rdb.Options().Addr))
	return &RedisCache{client: rdb, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Versions reads counters in one round trip; unset counters read as 0.
func (c *RedisCache) Versions(ctx context.Context, keys ...string) ([]int64, error) {
	out := make([]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("version %s: unexpected type %T", keys[i], v)
		}
		if out[i], err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("version %s: %w", keys[i], err)
		}
	}
	return out, nil
}

func (c *RedisCache) Bump(ctx context.Context, key string, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

type entry struct {
	value     []byte
	version   int64
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// sweepEvery is how many writes pass between full expiry sweeps.
const sweepEvery = 256

type InMemoryCache struct {
	mu     sync.Mutex
	data   map[string]entry
	writes int
	now    func() time.Time
}

func NewInMemory() *InMemoryCache {
	return &InMemoryCache{data: make(map[string]entry), now: time.Now}
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(c.now()) {
		delete(c.data, key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry{value: value, expiresAt: c.deadline(ttl)}
	c.wrote()
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Versions(_ context.Context, keys ...string) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]int64, len(keys))
	for i, k := range keys {
		if e, ok := c.data[k]; ok && !e.expired(now) {
			out[i] = e.version
		}
	}
	return out, nil
}

func (c *InMemoryCache) Bump(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || e.expired(c.now()) {
		e = entry{}
	}
	e.version++
	e.expiresAt = c.deadline(ttl)
	c.data[key] = e
	c.wrote()
	return nil
}

// Len counts stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *InMemoryCache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// wrote runs a sweep every sweepEvery writes. Entries written under a
// superseded version are never read again, so Get alone cannot reclaim them.
// Callers hold c.mu.
func (c *InMemoryCache) wrote() {
	c.writes++
	if c.writes%sweepEvery != 0 {
		return
	}
	now := c.now()
	for k, e := range c.data {
		if e.expired(now) {
			delete(c.data, k)
		}
	}
}
