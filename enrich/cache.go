package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = time.Hour
)

// Cache is a two-tier cache for enrichment results: an in-process
// expiring LRU, optionally backed by Redis so restarts and replicas share
// lookups. Values round-trip as JSON.
type Cache struct {
	lru    *expirable.LRU[string, []byte]
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewCache builds the cache from config. An empty RedisAddr keeps the cache
// purely in-process.
func NewCache(config Config, logger *zap.SugaredLogger) *Cache {
	size := config.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	c := &Cache{
		lru:    expirable.NewLRU[string, []byte](size, nil, ttl),
		ttl:    ttl,
		logger: logger,
	}
	if config.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		logger.Infow("enrichment cache backed by redis", "addr", config.RedisAddr)
	}
	return c
}

// Get loads a cached value into out, reporting whether it was found. A Redis
// hit repopulates the local tier.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) bool {
	if data, ok := c.lru.Get(key); ok {
		if err := json.Unmarshal(data, out); err == nil {
			return true
		}
		c.lru.Remove(key)
	}

	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, "enrich:"+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnw("redis cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	c.lru.Add(key, data)
	return true
}

// Set stores a value in both tiers. Redis failures are logged, not fatal.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warnw("cache value marshal failed", "key", key, "error", err)
		return
	}
	c.lru.Add(key, data)

	if c.redis != nil {
		if err := c.redis.Set(ctx, "enrich:"+key, data, c.ttl).Err(); err != nil {
			c.logger.Warnw("redis cache write failed", "key", key, "error", err)
		}
	}
}
