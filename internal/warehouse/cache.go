package warehouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedBackend is a read-through Redis cache in front of a live backend.
// Identical statements within the TTL window are answered from cache instead
// of re-billing the warehouse. Cache trouble never fails a query: any Redis
// error degrades to a direct execution.
type CachedBackend struct {
	inner  Backend
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedBackend wraps a backend with a Redis result cache.
func NewCachedBackend(inner Backend, redisURL string, ttl time.Duration, logger *zap.Logger) (*CachedBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("result cache connected", zap.Duration("ttl", ttl))
	return &CachedBackend{inner: inner, rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Execute serves from cache when possible, otherwise executes and stores.
func (c *CachedBackend) Execute(ctx context.Context, sql string, budget Budget) (*Result, error) {
	key := cacheKey(sql, budget.MaxBytesBilled)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached Result
		if json.Unmarshal(data, &cached) == nil {
			c.logger.Debug("cache hit", zap.String("key", key))
			return &cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("cache read failed", zap.Error(err))
	}

	result, err := c.inner.Execute(ctx, sql, budget)
	if err != nil {
		return nil, err
	}

	if data, merr := json.Marshal(result); merr == nil {
		if serr := c.rdb.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("cache write failed", zap.Error(serr))
		}
	}
	return result, nil
}

// Close releases the Redis connection.
func (c *CachedBackend) Close() error {
	return c.rdb.Close()
}

func cacheKey(sql string, maxBytes int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", maxBytes, sql)))
	return "qcache:" + hex.EncodeToString(sum[:16])
}
