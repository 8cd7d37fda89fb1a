package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/havenboard/checkin/internal/domain"
	"github.com/havenboard/checkin/pkg/logger"
)

const (
	activeListKey = "checkins:active"
	allListKey    = "checkins:all"
)

// ListCache is a best-effort read cache for the two list queries. A redis
// failure is logged and treated as a miss; callers fall through to Postgres.
type ListCache interface {
	GetActive(ctx context.Context) ([]domain.CheckIn, bool)
	SetActive(ctx context.Context, cs []domain.CheckIn)
	GetAll(ctx context.Context) ([]domain.CheckIn, bool)
	SetAll(ctx context.Context, cs []domain.CheckIn)
	Invalidate(ctx context.Context)
}

type RedisListCache struct {
	client    *redis.Client
	activeTTL time.Duration
	allTTL    time.Duration
}

func NewRedisListCache(client *redis.Client, activeTTL, allTTL time.Duration) *RedisListCache {
	return &RedisListCache{client: client, activeTTL: activeTTL, allTTL: allTTL}
}

func (c *RedisListCache) GetActive(ctx context.Context) ([]domain.CheckIn, bool) {
	return c.get(ctx, activeListKey)
}

func (c *RedisListCache) SetActive(ctx context.Context, cs []domain.CheckIn) {
	c.set(ctx, activeListKey, cs, c.activeTTL)
}

func (c *RedisListCache) GetAll(ctx context.Context) ([]domain.CheckIn, bool) {
	return c.get(ctx, allListKey)
}

func (c *RedisListCache) SetAll(ctx context.Context, cs []domain.CheckIn) {
	c.set(ctx, allListKey, cs, c.allTTL)
}

func (c *RedisListCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, activeListKey, allListKey).Err(); err != nil {
		logger.WarnContext(ctx, "Failed to invalidate list cache", "error", err)
	}
}

func (c *RedisListCache) get(ctx context.Context, key string) ([]domain.CheckIn, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.WarnContext(ctx, "List cache read failed", "key", key, "error", err)
		return nil, false
	}

	var cs []domain.CheckIn
	if err := json.Unmarshal(raw, &cs); err != nil {
		logger.WarnContext(ctx, "List cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return cs, true
}

func (c *RedisListCache) set(ctx context.Context, key string, cs []domain.CheckIn, ttl time.Duration) {
	raw, err := json.Marshal(cs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		logger.WarnContext(ctx, "List cache write failed", "key", key, "error", err)
	}
}

var _ ListCache = (*RedisListCache)(nil)
