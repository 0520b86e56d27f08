package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEvent is the durable notification that a stock mutation
// committed. Consumers see it at least once.
type SettlementEvent struct {
	EventID          string    `json:"event_id"`
	ItemID           string    `json:"item_id"`
	QuantityDelta    int       `json:"quantity_delta"`
	ResultingVersion int64     `json:"resulting_version"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// PriceUpdatedEvent announces a freshly resolved market price so downstream
// valuation can re-mark inventory without polling.
type PriceUpdatedEvent struct {
	ItemKey    string          `json:"item_key"`
	Value      decimal.Decimal `json:"value"`
	Source     string          `json:"source,omitempty"`
	Confidence PriceConfidence `json:"confidence"`
	FetchedAt  time.Time       `json:"fetched_at"`
}
