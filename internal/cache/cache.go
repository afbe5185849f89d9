// Package cache holds the document fingerprint registry and the claim window
// cache. Community runs on a bounded in-process LRU; Pro shares state through
// Redis, optionally fronted by the LRU.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultNearTTL bounds how long the local tier of a TwoPhaseCache may serve
// a value without going back to Redis.
const DefaultNearTTL = 5 * time.Minute

// New selects the cache for cfg.Type.
//
//	memory            LRU only
//	redis             Redis only
//	redis + two_phase LRU in front of Redis
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU into Redis. Redis is the source of
// truth: fingerprint ownership is always decided there, so two replicas never
// both register the same document.
type TwoPhaseCache struct {
	near    *LRUCache
	shared  *RedisCache
	nearTTL time.Duration
}

// NewTwoPhaseCache connects the shared tier and sizes the local one.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	shared, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), shared, cfg.LocalTTL), nil
}

func newTwoPhase(near *LRUCache, shared *RedisCache, nearTTL time.Duration) *TwoPhaseCache {
	if nearTTL <= 0 {
		nearTTL = DefaultNearTTL
	}
	return &TwoPhaseCache{near: near, shared: shared, nearTTL: nearTTL}
}

// Get serves a local hit, otherwise reads Redis and keeps a local copy.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if v, err := c.near.Get(ctx, tenantID, key); err != nil || v != nil {
		return v, err
	}

	v, err := c.shared.Get(ctx, tenantID, key)
	if err != nil || v == nil {
		return nil, err
	}
	c.fill(ctx, tenantID, key, v, 0)
	return v, nil
}

// Set writes Redis first so a failed write leaves no local-only value.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	c.fill(ctx, tenantID, key, value, ttl)
	return nil
}

// Delete removes the key from both tiers.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.near.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.shared.Delete(ctx, tenantID, key)
}

// GetOrSet decides ownership in Redis. A local hit means the key was already
// owned when it was cached, so it is answered without a round trip.
func (c *TwoPhaseCache) GetOrSet(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	if v, err := c.near.Get(ctx, tenantID, key); err != nil {
		return nil, false, err
	} else if v != nil {
		return v, true, nil
	}

	v, found, err := c.shared.GetOrSet(ctx, tenantID, key, value, ttl)
	if err != nil {
		return nil, false, err
	}
	c.fill(ctx, tenantID, key, v, ttl)
	return v, found, nil
}

// fill copies a value into the local tier for at most nearTTL.
func (c *TwoPhaseCache) fill(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > c.nearTTL {
		ttl = c.nearTTL
	}
	_ = c.near.Set(ctx, tenantID, key, value, ttl)
}

// Ping checks both tiers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.near.Ping(ctx); err != nil {
		return fmt.Errorf("local cache: %w", err)
	}
	if err := c.shared.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases both tiers.
func (c *TwoPhaseCache) Close() error {
	_ = c.near.Close()
	return c.shared.Close()
}

// Stats reports the local tier's occupancy.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.near.Stats()
}
