package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/port"
)

func newSourceServer(t *testing.T, handler http.HandlerFunc) (*HTTPSource, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPSource("xianyu", server.URL, server.Client()), server
}

func TestHTTPSource_Lookup(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/sku-1:xianyu", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"price": "28.00", "available": true}`))
	})

	value, err := source.Lookup(context.Background(), "sku-1:xianyu")
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("28.00")))
}

func TestHTTPSource_NotFoundStatus(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := source.Lookup(context.Background(), "sku-gone")
	require.ErrorIs(t, err, port.ErrPriceNotFound)
}

func TestHTTPSource_UnavailableBody(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"available": false}`))
	})

	_, err := source.Lookup(context.Background(), "sku-1")
	require.ErrorIs(t, err, port.ErrPriceNotFound)
}

func TestHTTPSource_MalformedBodyIsPermanent(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>captcha</html>`))
	})

	_, err := source.Lookup(context.Background(), "sku-1")
	require.ErrorIs(t, err, port.ErrPriceNotFound)
}

func TestHTTPSource_ThrottledIsTransient(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := source.Lookup(context.Background(), "sku-1")
	require.ErrorIs(t, err, port.ErrSourceThrottled)
	assert.NotErrorIs(t, err, port.ErrPriceNotFound)
}

func TestHTTPSource_ServerErrorIsTransient(t *testing.T) {
	source, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := source.Lookup(context.Background(), "sku-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrPriceNotFound)
}

func TestRecoveryPrice(t *testing.T) {
	now := time.Now().UTC()

	secondary := domain.PriceQuote{
		Value:      decimal.RequireFromString("100.00"),
		Source:     "xianyu",
		Confidence: domain.ConfidenceFresh,
		FetchedAt:  now,
	}
	assert.True(t, RecoveryPrice(secondary, "xianyu").Equal(decimal.RequireFromString("60.00")))

	retail := secondary
	retail.Source = "pdd"
	assert.True(t, RecoveryPrice(retail, "xianyu").Equal(decimal.RequireFromString("50.00")))

	unresolved := domain.UnresolvedQuote("sku-1", now, 0)
	assert.True(t, RecoveryPrice(unresolved, "xianyu").IsZero())
}
