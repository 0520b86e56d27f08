package port

import (
	"context"
	"errors"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

var ErrItemNotFound = errors.New("inventory item not found")

type CommitStatus string

const (
	CommitOK           CommitStatus = "committed"
	CommitConflict     CommitStatus = "version_conflict"
	CommitInsufficient CommitStatus = "insufficient_stock"
)

// CommitResult is the outcome of one conditional update against the ledger.
// NewVersion and NewQuantity are only meaningful when Status is CommitOK.
type CommitResult struct {
	Status      CommitStatus
	NewVersion  int64
	NewQuantity int
}

type StockLedger interface {
	// ReadItem retrieves an item by ID, nil when it does not exist
	ReadItem(ctx context.Context, itemID string) (*domain.InventoryItem, error)

	// ApplyDelta atomically adjusts quantity if the stored version matches
	// expectedVersion and the result stays non-negative; the sole mutation
	// entry point
	ApplyDelta(ctx context.Context, itemID string, delta int, expectedVersion int64) (CommitResult, error)

	// CreateItem registers a new item at intake, version 0
	CreateItem(ctx context.Context, item domain.InventoryItem) error
}
