package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceConfidence string

const (
	ConfidenceFresh         PriceConfidence = "fresh"
	ConfidenceStaleFallback PriceConfidence = "stale_fallback"
	ConfidenceUnresolved    PriceConfidence = "unresolved"
)

// PriceQuote is a point-in-time market price for an item key. An unresolved
// quote carries a zero value and marks the key as having no obtainable price.
type PriceQuote struct {
	ItemKey    string          `json:"item_key"`
	Value      decimal.Decimal `json:"value"`
	Source     string          `json:"source,omitempty"`
	Confidence PriceConfidence `json:"confidence"`
	FetchedAt  time.Time       `json:"fetched_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

func (q PriceQuote) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// UsableAt reports whether an already-expired quote may still be served as a
// stale fallback given the caller's staleness tolerance.
func (q PriceQuote) UsableAt(now time.Time, maxStaleness time.Duration) bool {
	return now.Before(q.ExpiresAt.Add(maxStaleness))
}

// UnresolvedQuote builds the negative-result quote for a key that has no
// obtainable price.
func UnresolvedQuote(itemKey string, now time.Time, ttl time.Duration) PriceQuote {
	return PriceQuote{
		ItemKey:    itemKey,
		Confidence: ConfidenceUnresolved,
		FetchedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}
