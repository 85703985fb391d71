// Package cache holds the Redis-backed in-flight guard that keeps two API
// instances from running the allocation step for the same order at once.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"valor/internal/config"
)

// InflightGuard serializes work per key. Acquire returns ok=false when
// another holder owns the key; release is nil in that case.
type InflightGuard interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// redisClient is the subset of *redis.Client the guard uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another instance is never removed.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const keyPrefix = "valor:inflight:"

type RedisInflightGuard struct {
	client redisClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisInflightGuard(client redisClient, ttl time.Duration, logger *slog.Logger) *RedisInflightGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisInflightGuard{client: client, ttl: ttl, logger: logger.With("component", "inflight_guard")}
}

// NewRedisClient parses REDIS_URL and returns a client, or nil when Redis is
// not configured.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.URL.IsSet() {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (g *RedisInflightGuard) Acquire(ctx context.Context, key string) (func(), bool, error) {
	fullKey := keyPrefix + key
	token := uuid.New().String()

	ok, err := g.client.SetNX(ctx, fullKey, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("inflight guard: setnx %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release must run even when the caller's context was cancelled.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{fullKey}, token).Err(); err != nil {
			g.logger.WarnContext(ctx, "failed to release inflight key", "key", fullKey, "error", err)
		}
	}
	return release, true, nil
}

var _ InflightGuard = (*RedisInflightGuard)(nil)
