package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tn1392/stock-reserve/internal/port"
)

type stubSource struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context) (decimal.Decimal, error)
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(ctx context.Context, itemKey string) (decimal.Decimal, error) {
	s.calls.Add(1)
	return s.fn(ctx)
}

func fastFetchConfig() Config {
	return Config{
		MaxConcurrent:  5,
		AttemptTimeout: time.Second,
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxElapsed:     time.Second,
	}
}

func TestFetch_TransientRetryThenSuccess(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)
	source := &stubSource{name: "xianyu", fn: func(ctx context.Context) (decimal.Decimal, error) {
		if failures.Add(-1) >= 0 {
			return decimal.Zero, errors.New("connection reset")
		}
		return decimal.RequireFromString("28.00"), nil
	}}

	f := NewFetcher([]port.PriceSource{source}, fastFetchConfig(), zerolog.Nop())

	quote, err := f.Fetch(context.Background(), "sku-1:xianyu")
	require.NoError(t, err)
	assert.True(t, quote.Value.Equal(decimal.RequireFromString("28.00")))
	assert.Equal(t, "xianyu", quote.Source)
	assert.Equal(t, int32(3), source.calls.Load())
}

func TestFetch_PermanentNotFoundNoRetry(t *testing.T) {
	source := &stubSource{name: "xianyu", fn: func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.Zero, port.ErrPriceNotFound
	}}

	f := NewFetcher([]port.PriceSource{source}, fastFetchConfig(), zerolog.Nop())

	_, err := f.Fetch(context.Background(), "sku-1:xianyu")
	require.ErrorIs(t, err, port.ErrPriceNotFound)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestFetch_ThrottledIsRetried(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	source := &stubSource{name: "pdd", fn: func(ctx context.Context) (decimal.Decimal, error) {
		if failures.Add(-1) >= 0 {
			return decimal.Zero, port.ErrSourceThrottled
		}
		return decimal.RequireFromString("35.90"), nil
	}}

	f := NewFetcher([]port.PriceSource{source}, fastFetchConfig(), zerolog.Nop())

	quote, err := f.Fetch(context.Background(), "sku-1:pdd")
	require.NoError(t, err)
	assert.True(t, quote.Value.Equal(decimal.RequireFromString("35.90")))
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestFetch_FallsBackToNextSource(t *testing.T) {
	primary := &stubSource{name: "xianyu", fn: func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("timeout")
	}}
	backup := &stubSource{name: "pdd", fn: func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.RequireFromString("12.50"), nil
	}}

	f := NewFetcher([]port.PriceSource{primary, backup}, fastFetchConfig(), zerolog.Nop())

	quote, err := f.Fetch(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, "pdd", quote.Source, "backup source result must not be mixed with the primary")
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), backup.calls.Load())
}

func TestFetch_AllSourcesNotFoundIsPermanent(t *testing.T) {
	notFound := func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.Zero, port.ErrPriceNotFound
	}
	a := &stubSource{name: "xianyu", fn: notFound}
	b := &stubSource{name: "pdd", fn: notFound}

	f := NewFetcher([]port.PriceSource{a, b}, fastFetchConfig(), zerolog.Nop())

	_, err := f.Fetch(context.Background(), "sku-gone")
	require.ErrorIs(t, err, port.ErrPriceNotFound)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestFetch_ConcurrencyBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	source := &stubSource{name: "xianyu", fn: func(ctx context.Context) (decimal.Decimal, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return decimal.RequireFromString("1.00"), nil
	}}

	cfg := fastFetchConfig()
	cfg.MaxConcurrent = 2
	f := NewFetcher([]port.PriceSource{source}, cfg, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), "sku-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2), "outstanding fetches must respect the global bound")
}

func TestFetch_ContextCanceled(t *testing.T) {
	source := &stubSource{name: "xianyu", fn: func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.RequireFromString("1.00"), nil
	}}
	f := NewFetcher([]port.PriceSource{source}, fastFetchConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "sku-1")
	require.Error(t, err)
	assert.Equal(t, int32(0), source.calls.Load())
}
