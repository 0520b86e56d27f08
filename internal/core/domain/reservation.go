package domain

type ReservationOutcome string

const (
	OutcomeCommitted         ReservationOutcome = "committed"
	OutcomeConflict          ReservationOutcome = "conflict"
	OutcomeInsufficientStock ReservationOutcome = "insufficient_stock"
	OutcomeFailed            ReservationOutcome = "failed"
)

// ReservationAttempt is the transient record of one reserve call. It is
// returned to the caller and never persisted.
type ReservationAttempt struct {
	ItemID          string
	Quantity        int
	ExpectedVersion int64
	Outcome         ReservationOutcome
	NewVersion      int64
	NewQuantity     int
	Quote           *PriceQuote
	// EventPublished is false when the ledger mutation committed but the
	// settlement event could not be delivered. The commit stands either way.
	EventPublished bool
	Reason         string
}
