package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	return client
}

func testQuote(key string, now time.Time, ttl time.Duration) domain.PriceQuote {
	return domain.PriceQuote{
		ItemKey:    key,
		Value:      decimal.RequireFromString("28.00"),
		Source:     "xianyu",
		Confidence: domain.ConfidenceFresh,
		FetchedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, 0)
	now := time.Now().UTC().Truncate(time.Millisecond)

	quote := testQuote("rt-key", now, time.Minute)
	if err := cache.Put(ctx, "rt-key", quote, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := cache.Get(ctx, "rt-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit, got miss")
	}
	if !got.Value.Equal(quote.Value) {
		t.Errorf("expected value %s, got %s", quote.Value, got.Value)
	}
	if got.Source != quote.Source || got.Confidence != quote.Confidence {
		t.Errorf("quote metadata changed on round trip: %+v", got)
	}
	if !got.ExpiresAt.Equal(quote.ExpiresAt) {
		t.Errorf("expected expiry %v, got %v", quote.ExpiresAt, got.ExpiresAt)
	}
}

func TestRedisCache_MissAfterTTL(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, 0)
	now := time.Now().UTC()

	quote := testQuote("ttl-key", now, 50*time.Millisecond)
	if err := cache.Put(ctx, "ttl-key", quote, 50*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	got, err := cache.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected miss after TTL with no stale window")
	}
}

func TestRedisCache_StaleWindowKeepsEntry(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, time.Minute)
	now := time.Now().UTC()

	quote := testQuote("stale-key", now, 50*time.Millisecond)
	if err := cache.Put(ctx, "stale-key", quote, 50*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	// Logically expired but still physically present for stale fallback.
	got, err := cache.Get(ctx, "stale-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry to survive into the stale window")
	}
	if !got.Expired(time.Now().UTC()) {
		t.Error("expected the surviving entry to be logically expired")
	}
}

func TestRedisCache_PoisonedEntryDropped(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, 0)

	if err := client.Set(ctx, "price:bad-key", "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := cache.Get(ctx, "bad-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected poisoned entry to read as a miss")
	}

	if exists, _ := client.Exists(ctx, "price:bad-key").Result(); exists != 0 {
		t.Error("expected poisoned entry to be deleted")
	}
}

func TestRedisCache_ConcurrentLeaseExactlyOne(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, 0)
	client.Del(ctx, "fetch:lease-key")

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := cache.AcquireLease(ctx, "lease-key", time.Minute)
			if err != nil {
				t.Errorf("AcquireLease failed: %v", err)
				return
			}
			if ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	if acquired.Load() != 1 {
		t.Errorf("expected exactly 1 lease holder, got %d", acquired.Load())
	}

	// Releasing frees the key for the next refresh cycle.
	if err := cache.ReleaseLease(ctx, "lease-key"); err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
	ok, err := cache.AcquireLease(ctx, "lease-key", time.Minute)
	if err != nil || !ok {
		t.Errorf("expected lease to be reacquirable after release: ok=%v err=%v", ok, err)
	}
	cache.ReleaseLease(ctx, "lease-key")
}

func TestRedisCache_Delete(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, 0)
	now := time.Now().UTC()

	if err := cache.Put(ctx, "del-key", testQuote("del-key", now, time.Minute), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Delete(ctx, "del-key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := cache.Get(ctx, "del-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected miss after delete")
	}
}
