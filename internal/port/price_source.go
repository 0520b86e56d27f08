package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

var (
	// ErrPriceNotFound means the source definitively has no price for the
	// key. Not retried; memoized as an unresolved quote.
	ErrPriceNotFound = errors.New("price not found")

	// ErrSourceThrottled means the source rejected the request for rate
	// reasons. Transient, retried with backoff.
	ErrSourceThrottled = errors.New("price source throttled")
)

// PriceSource is one external market endpoint. Lookup returns the current
// price for a key or a sentinel classifying the failure.
type PriceSource interface {
	Name() string
	Lookup(ctx context.Context, itemKey string) (decimal.Decimal, error)
}

// PriceFetcher performs one rate-limited, retried price acquisition across
// the configured sources.
type PriceFetcher interface {
	Fetch(ctx context.Context, itemKey string) (domain.PriceQuote, error)
}
