package domain

import "time"

type ItemStatus string

const (
	ItemStatusActive      ItemStatus = "active"
	ItemStatusReservedOut ItemStatus = "reserved_out"
	ItemStatusExpired     ItemStatus = "expired"
	ItemStatusWithdrawn   ItemStatus = "withdrawn"
)

type InventoryItem struct {
	ID        string
	Name      string
	Quantity  int
	Version   int64 // optimistic locking
	Status    ItemStatus
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sellable reports whether quantity units can be reserved from this item
// right now. It is only a pre-check; the ledger's conditional update is the
// final word.
func (i InventoryItem) Sellable(quantity int) bool {
	return i.Status == ItemStatusActive && i.Quantity >= quantity
}
