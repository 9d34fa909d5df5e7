// Package cache provides the injected cache handle used in front of slow
// upstream fetches. A missing or failing cache never fails the caller; it
// degrades to calling the underlying fetcher.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/env"
)

// Cache is a byte-oriented key/value cache with TTLs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Config struct {
	URL       string        `env:"KNESSET_REDIS_URL"`
	KeyPrefix string        `env:"KNESSET_REDIS_KEY_PREFIX" envDefault:"knesset:"`
	Timeout   time.Duration `env:"KNESSET_REDIS_TIMEOUT" envDefault:"500ms"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("KNESSET_REDIS_TIMEOUT must be positive")
	}
	return nil
}

// Enabled reports whether a cache backend is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// RedisCache implements Cache on top of a go-redis client.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisCache returns nil, nil when no URL is configured so callers can pass
// the result straight through as "no cache".
func NewRedisCache(cfg Config) (*RedisCache, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{
		client:  redis.NewClient(opts),
		prefix:  cfg.KeyPrefix,
		timeout: cfg.Timeout,
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GetOrFetch returns the cached value for key, or calls fetch and stores its
// result. Cache errors are logged and otherwise ignored.
func GetOrFetch(ctx context.Context, logger *slog.Logger, c Cache, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if isNil(c) {
		return fetch(ctx)
	}
	if val, ok, err := c.Get(ctx, key); err != nil {
		logWarn(logger, "cache get failed", "key", key, "error", err)
	} else if ok {
		return val, nil
	}

	val, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, val, ttl); err != nil {
		logWarn(logger, "cache set failed", "key", key, "error", err)
	}
	return val, nil
}

func isNil(c Cache) bool {
	if c == nil {
		return true
	}
	if rc, ok := c.(*RedisCache); ok && rc == nil {
		return true
	}
	return false
}

func logWarn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
