package port

import (
	"context"
	"time"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

type PriceCache interface {
	// Get retrieves a cached quote, nil on miss
	Get(ctx context.Context, key string) (*domain.PriceQuote, error)

	// Put stores a quote with a freshness TTL
	Put(ctx context.Context, key string, quote domain.PriceQuote, ttl time.Duration) error

	// Delete drops a cached quote
	Delete(ctx context.Context, key string) error

	// AcquireLease atomically claims the in-flight fetch marker for a key,
	// returns false if another fetch already holds it
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLease drops the in-flight fetch marker
	ReleaseLease(ctx context.Context, key string) error
}
