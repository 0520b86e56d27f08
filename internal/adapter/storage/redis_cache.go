package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

const (
	priceKeyPrefix = "price:"
	leaseKeyPrefix = "fetch:"
)

// RedisCache stores serialized quotes with a physical TTL of quote TTL plus
// the stale window, so an expired-but-fallbackable entry is still readable.
// Logical freshness lives in the quote's own ExpiresAt.
type RedisCache struct {
	client      *redis.Client
	staleWindow time.Duration
}

func NewRedisCache(client *redis.Client, staleWindow time.Duration) *RedisCache {
	return &RedisCache{client: client, staleWindow: staleWindow}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*domain.PriceQuote, error) {
	raw, err := r.client.Get(ctx, priceKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	var quote domain.PriceQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		// Poisoned entry: drop it and report a miss rather than serve it.
		r.client.Del(ctx, priceKeyPrefix+key)
		return nil, nil
	}

	return &quote, nil
}

func (r *RedisCache) Put(ctx context.Context, key string, quote domain.PriceQuote, ttl time.Duration) error {
	raw, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}

	if err := r.client.Set(ctx, priceKeyPrefix+key, raw, ttl+r.staleWindow).Err(); err != nil {
		return fmt.Errorf("set quote: %w", err)
	}

	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, priceKeyPrefix+key).Err()
}

func (r *RedisCache) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, leaseKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}

	return ok, nil
}

func (r *RedisCache) ReleaseLease(ctx context.Context, key string) error {
	return r.client.Del(ctx, leaseKeyPrefix+key).Err()
}
