package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/port"
)

type PriceConfig struct {
	// QuoteTTL is how long a fetched price counts as fresh.
	QuoteTTL time.Duration
	// NegativeTTL memoizes definitive not-found results, typically longer
	// than QuoteTTL so dead keys stop hammering the sources.
	NegativeTTL time.Duration
	// RefreshLeaseTTL bounds the cross-process in-flight marker held while
	// an asynchronous refresh runs.
	RefreshLeaseTTL time.Duration
	// RefreshBudget caps one background refresh end to end.
	RefreshBudget time.Duration
}

func DefaultPriceConfig() PriceConfig {
	return PriceConfig{
		QuoteTTL:        15 * time.Minute,
		NegativeTTL:     time.Hour,
		RefreshLeaseTTL: 2 * time.Minute,
		RefreshBudget:   90 * time.Second,
	}
}

// PriceService resolves market prices through the cache, falling back to the
// rate-limited fetcher on a miss. Stateless apart from the in-process
// singleflight group; the cache owns all quote storage.
type PriceService struct {
	cache    port.PriceCache
	fetcher  port.PriceFetcher
	notifier port.EventNotifier  // optional, nil disables price-updated events
	filter   *ExistenceFilter    // optional, nil disables the intake filter
	group    singleflight.Group
	cfg      PriceConfig
	logger   zerolog.Logger
}

func NewPriceService(cache port.PriceCache, fetcher port.PriceFetcher, notifier port.EventNotifier, filter *ExistenceFilter, cfg PriceConfig, logger zerolog.Logger) *PriceService {
	return &PriceService{
		cache:    cache,
		fetcher:  fetcher,
		notifier: notifier,
		filter:   filter,
		cfg:      cfg,
		logger:   logger.With().Str("component", "pricing").Logger(),
	}
}

// RegisterSKU records an intake-time SKU in the existence filter. No-op when
// the filter is disabled.
func (s *PriceService) RegisterSKU(sku string) {
	if s.filter != nil {
		s.filter.Add(sku)
	}
}

// GetPrice resolves a quote for itemKey. maxStaleness is the caller's
// tolerance for serving an expired quote while a refresh happens in the
// background; zero demands a fresh or newly fetched price. Pricing failures
// degrade to an unresolved quote, never a hard error.
func (s *PriceService) GetPrice(ctx context.Context, itemKey string, maxStaleness time.Duration) (domain.PriceQuote, error) {
	now := time.Now().UTC()

	if s.filter != nil && !s.filter.MightContain(skuOf(itemKey)) {
		return domain.UnresolvedQuote(itemKey, now, 0), nil
	}

	cached, err := s.cache.Get(ctx, itemKey)
	if err != nil {
		// A broken cache degrades to a fetch, it does not fail the lookup.
		s.logger.Warn().Err(err).Str("item_key", itemKey).Msg("cache read failed, treating as miss")
		cached = nil
	}

	if cached != nil {
		if !cached.Expired(now) {
			return *cached, nil
		}
		if maxStaleness > 0 && cached.Confidence != domain.ConfidenceUnresolved && cached.UsableAt(now, maxStaleness) {
			s.refreshAsync(itemKey)
			stale := *cached
			stale.Confidence = domain.ConfidenceStaleFallback
			return stale, nil
		}
	}

	// Collapse concurrent misses for the same key onto one fetch; everyone
	// waiting gets the in-flight result.
	v, err, _ := s.group.Do(itemKey, func() (interface{}, error) {
		return s.fetchAndStore(ctx, itemKey)
	})
	if err != nil {
		return domain.UnresolvedQuote(itemKey, now, 0), err
	}

	return v.(domain.PriceQuote), nil
}

func (s *PriceService) fetchAndStore(ctx context.Context, itemKey string) (domain.PriceQuote, error) {
	quote, err := s.fetcher.Fetch(ctx, itemKey)
	now := time.Now().UTC()

	if err != nil {
		if errors.Is(err, port.ErrPriceNotFound) {
			// Definitive miss: memoize so dead keys stop reaching sources.
			negative := domain.UnresolvedQuote(itemKey, now, s.cfg.NegativeTTL)
			if putErr := s.cache.Put(ctx, itemKey, negative, s.cfg.NegativeTTL); putErr != nil {
				s.logger.Warn().Err(putErr).Str("item_key", itemKey).Msg("negative memoization failed")
			}
			return negative, nil
		}

		// Transient exhaustion stays uncached so the next caller may retry.
		s.logger.Warn().Err(err).Str("item_key", itemKey).Msg("fetch exhausted, serving unresolved")
		return domain.UnresolvedQuote(itemKey, now, 0), nil
	}

	quote.Confidence = domain.ConfidenceFresh
	quote.ExpiresAt = now.Add(s.cfg.QuoteTTL)
	if putErr := s.cache.Put(ctx, itemKey, quote, s.cfg.QuoteTTL); putErr != nil {
		s.logger.Warn().Err(putErr).Str("item_key", itemKey).Msg("quote store failed")
	}

	if s.notifier != nil {
		event := domain.PriceUpdatedEvent{
			ItemKey:    quote.ItemKey,
			Value:      quote.Value,
			Source:     quote.Source,
			Confidence: quote.Confidence,
			FetchedAt:  quote.FetchedAt,
		}
		if pubErr := s.notifier.PublishPriceUpdate(ctx, event); pubErr != nil {
			s.logger.Warn().Err(pubErr).Str("item_key", itemKey).Msg("price update publish failed")
		}
	}

	return quote, nil
}

// refreshAsync repopulates the cache for a key served stale. The lease keeps
// concurrent stale readers, including those in other processes, from each
// launching their own refresh; losing it means someone else is on it.
func (s *PriceService) refreshAsync(itemKey string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshBudget)
		defer cancel()

		ok, err := s.cache.AcquireLease(ctx, itemKey, s.cfg.RefreshLeaseTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("item_key", itemKey).Msg("refresh lease failed")
			return
		}
		if !ok {
			return
		}
		defer s.cache.ReleaseLease(ctx, itemKey)

		if _, err, _ := s.group.Do(itemKey, func() (interface{}, error) {
			return s.fetchAndStore(ctx, itemKey)
		}); err != nil {
			s.logger.Warn().Err(err).Str("item_key", itemKey).Msg("background refresh failed")
		}
	}()
}

// skuOf strips the source suffix off an item key; the existence filter is
// populated per SKU at intake, before sources are known.
func skuOf(itemKey string) string {
	if i := strings.IndexByte(itemKey, ':'); i >= 0 {
		return itemKey[:i]
	}
	return itemKey
}
