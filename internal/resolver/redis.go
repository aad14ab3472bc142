package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

// RedisCache is a Cache shared between instances through Redis.
// Redis failures are logged and treated as cache misses.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisCache creates a RedisCache. Keys are stored as "<prefix>:<company>".
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, prefix string, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bookcal:identity"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *RedisCache) key(company string) string {
	return c.prefix + ":" + company
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, company string) (*store.Identity, bool) {
	raw, err := c.rdb.Get(ctx, c.key(company)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("identity cache read failed", logging.Company(company), logging.Err(err))
		}
		return nil, false
	}

	var identity store.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		c.logger.Warn("identity cache entry corrupt", logging.Company(company), logging.Err(err))
		return nil, false
	}
	return &identity, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, company string, identity *store.Identity) {
	raw, err := json.Marshal(identity)
	if err != nil {
		c.logger.Warn("identity cache encode failed", logging.Company(company), logging.Err(err))
		return
	}
	if err := c.rdb.Set(ctx, c.key(company), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("identity cache write failed", logging.Company(company), logging.Err(err))
	}
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, company string) {
	if err := c.rdb.Del(ctx, c.key(company)).Err(); err != nil {
		c.logger.Warn("identity cache invalidate failed", logging.Company(company), logging.Err(err))
	}
}
