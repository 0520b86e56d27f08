package port

import (
	"context"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

// EventNotifier publishes domain events to the bus. Delivery is at least
// once; the bus, not the caller, owns redelivery.
type EventNotifier interface {
	PublishSettlement(ctx context.Context, event domain.SettlementEvent) error
	PublishPriceUpdate(ctx context.Context, event domain.PriceUpdatedEvent) error
}
