package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/port"
)

// Markdown factors for the suggested recovery (buy-back) price: 60% of a
// secondary-market price leaves channel margin; retail prices get 50%.
var (
	secondaryMarkdown = decimal.NewFromFloat(0.6)
	retailMarkdown    = decimal.NewFromFloat(0.5)
)

// RecoveryPrice suggests what to pay to take the item back in, derived from
// a resolved quote. Zero for unresolved quotes.
func RecoveryPrice(quote domain.PriceQuote, secondarySource string) decimal.Decimal {
	if quote.Confidence == domain.ConfidenceUnresolved {
		return decimal.Zero
	}
	if quote.Source == secondarySource {
		return quote.Value.Mul(secondaryMarkdown)
	}
	return quote.Value.Mul(retailMarkdown)
}

// NewHTTPClient builds the pooled client shared by all HTTP sources. No
// client-level timeout; each lookup is bounded by its context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
}

// HTTPSource looks prices up on one marketplace endpoint. The endpoints sit
// behind anti-bot gear, so requests carry ordinary browser headers.
type HTTPSource struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPSource(name, baseURL string, client *http.Client) *HTTPSource {
	return &HTTPSource{name: name, baseURL: baseURL, client: client}
}

func (s *HTTPSource) Name() string {
	return s.name
}

type priceResponse struct {
	Price     decimal.Decimal `json:"price"`
	Available *bool           `json:"available"`
}

func (s *HTTPSource) Lookup(ctx context.Context, itemKey string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/prices/"+url.PathEscape(itemKey), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/html;q=0.9")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("source %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, port.ErrPriceNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return decimal.Zero, fmt.Errorf("source %s: %w", s.name, port.ErrSourceThrottled)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("source %s: unexpected status %d", s.name, resp.StatusCode)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// A response that cannot be read as a price means the source has no
		// price to give; retrying will not change its mind.
		return decimal.Zero, fmt.Errorf("source %s: malformed body: %w", s.name, port.ErrPriceNotFound)
	}

	if body.Available != nil && !*body.Available {
		return decimal.Zero, port.ErrPriceNotFound
	}
	if body.Price.IsZero() {
		return decimal.Zero, port.ErrPriceNotFound
	}

	return body.Price, nil
}
