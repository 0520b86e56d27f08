package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/port"
)

type Config struct {
	// MaxConcurrent bounds outstanding fetches across all keys.
	MaxConcurrent int64
	// AttemptTimeout caps one lookup against one source.
	AttemptTimeout time.Duration
	// MaxAttempts bounds retries on transient failures.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	// MaxElapsed caps the total wall clock spent on one fetch.
	MaxElapsed time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  5,
		AttemptTimeout: 30 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      5 * time.Second,
		MaxElapsed:     90 * time.Second,
	}
}

// Fetcher performs price lookups against external sources under a global
// concurrency bound, with exponential backoff on transient failures. Sources
// are tried in priority order; results from different sources are never
// merged into one quote.
type Fetcher struct {
	sources []port.PriceSource
	sem     *semaphore.Weighted
	cfg     Config
	logger  zerolog.Logger
}

func NewFetcher(sources []port.PriceSource, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Fetcher{
		sources: sources,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:     cfg,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch resolves a price for itemKey. A definitive miss across all sources
// surfaces as an error wrapping port.ErrPriceNotFound; transient exhaustion
// wraps the last failure.
func (f *Fetcher) Fetch(ctx context.Context, itemKey string) (domain.PriceQuote, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("fetch %s: %w", itemKey, err)
	}
	defer f.sem.Release(1)

	var quote domain.PriceQuote
	operation := func() error {
		q, err := f.trySources(ctx, itemKey)
		if err != nil {
			if errors.Is(err, port.ErrPriceNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		quote = q
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.BaseDelay
	policy.Multiplier = 2
	policy.MaxElapsedTime = f.cfg.MaxElapsed

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(f.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("fetch %s: %w", itemKey, err)
	}

	return quote, nil
}

// trySources walks the priority ladder once. A failing source, transient or
// not, yields to the next; only when every source definitively reports
// not-found does the whole attempt become permanent.
func (f *Fetcher) trySources(ctx context.Context, itemKey string) (domain.PriceQuote, error) {
	if len(f.sources) == 0 {
		return domain.PriceQuote{}, backoff.Permanent(fmt.Errorf("fetch %s: no sources configured", itemKey))
	}

	var lastTransient error
	notFound := 0

	for _, src := range f.sources {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
		value, err := src.Lookup(attemptCtx, itemKey)
		cancel()

		if err == nil {
			return domain.PriceQuote{
				ItemKey:   itemKey,
				Value:     value,
				Source:    src.Name(),
				FetchedAt: time.Now().UTC(),
			}, nil
		}

		if errors.Is(err, port.ErrPriceNotFound) {
			notFound++
			continue
		}

		f.logger.Debug().Err(err).Str("item_key", itemKey).Str("source", src.Name()).Msg("source lookup failed")
		lastTransient = err
	}

	if notFound == len(f.sources) {
		return domain.PriceQuote{}, fmt.Errorf("all sources: %w", port.ErrPriceNotFound)
	}

	return domain.PriceQuote{}, lastTransient
}
