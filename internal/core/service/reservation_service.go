package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/port"
)

var ErrContentionExhausted = errors.New("reservation retry budget exhausted")

type ReservationConfig struct {
	// MaxAttempts bounds the CAS retry loop on version conflicts.
	MaxAttempts int
	// BackoffMin/BackoffMax bound the randomized sleep between conflicting
	// attempts on the same item.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// CallBudget caps the whole ledger retry loop when the caller's context
	// carries no deadline of its own. Pricing runs outside this budget.
	CallBudget time.Duration
}

func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		MaxAttempts: 5,
		BackoffMin:  5 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
		CallBudget:  2500 * time.Millisecond,
	}
}

// ReservationService applies optimistic-concurrency decrements against the
// stock ledger. It holds no state of its own; every call works off the
// injected ledger and notifier handles.
type ReservationService struct {
	ledger   port.StockLedger
	notifier port.EventNotifier
	prices   *PriceService // optional, nil disables pricing
	cfg      ReservationConfig
	logger   zerolog.Logger
}

func NewReservationService(ledger port.StockLedger, notifier port.EventNotifier, prices *PriceService, cfg ReservationConfig, logger zerolog.Logger) *ReservationService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &ReservationService{
		ledger:   ledger,
		notifier: notifier,
		prices:   prices,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reservation").Logger(),
	}
}

type ReserveRequest struct {
	ItemID   string
	Quantity int
	// PriceKey, when set, values the reservation before the ledger touch.
	// Pricing failures never block the reservation.
	PriceKey     string
	MaxStaleness time.Duration
}

// Reserve attempts to decrement stock for the request. Business outcomes
// (insufficient stock, contention exhausted) come back in the attempt;
// a non-nil error means infrastructure trouble or an unknown item.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (domain.ReservationAttempt, error) {
	attempt := domain.ReservationAttempt{ItemID: req.ItemID, Quantity: req.Quantity}

	if req.Quantity <= 0 {
		attempt.Outcome = domain.OutcomeFailed
		attempt.Reason = "quantity must be positive"
		return attempt, fmt.Errorf("reserve %s: quantity %d must be positive", req.ItemID, req.Quantity)
	}

	if req.PriceKey != "" && s.prices != nil {
		// Pricing carries its own fetch budget and must not eat into the
		// ledger retry budget, so it runs before the deadline is applied.
		quote, err := s.prices.GetPrice(context.WithoutCancel(ctx), req.PriceKey, req.MaxStaleness)
		if err != nil {
			s.logger.Warn().Err(err).Str("price_key", req.PriceKey).Msg("pricing degraded to unresolved")
			unresolved := domain.UnresolvedQuote(req.PriceKey, time.Now().UTC(), 0)
			quote = unresolved
		}
		attempt.Quote = &quote
	}

	if _, ok := ctx.Deadline(); !ok && s.cfg.CallBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CallBudget)
		defer cancel()
	}

	for i := 0; i < s.cfg.MaxAttempts; i++ {
		item, err := s.ledger.ReadItem(ctx, req.ItemID)
		if err != nil {
			attempt.Outcome = domain.OutcomeFailed
			attempt.Reason = "ledger read failed"
			return attempt, fmt.Errorf("read item %s: %w", req.ItemID, err)
		}
		if item == nil {
			attempt.Outcome = domain.OutcomeFailed
			attempt.Reason = "item not found"
			return attempt, port.ErrItemNotFound
		}

		// Legitimate business outcome, not a race: no retry.
		if !item.Sellable(req.Quantity) {
			attempt.Outcome = domain.OutcomeInsufficientStock
			return attempt, nil
		}

		attempt.ExpectedVersion = item.Version

		result, err := s.ledger.ApplyDelta(ctx, req.ItemID, -req.Quantity, item.Version)
		if err != nil {
			attempt.Outcome = domain.OutcomeFailed
			attempt.Reason = "ledger update failed"
			return attempt, fmt.Errorf("apply delta for %s: %w", req.ItemID, err)
		}

		switch result.Status {
		case port.CommitOK:
			attempt.Outcome = domain.OutcomeCommitted
			attempt.NewVersion = result.NewVersion
			attempt.NewQuantity = result.NewQuantity
			attempt.EventPublished = s.publishSettlement(ctx, req, result)
			return attempt, nil

		case port.CommitInsufficient:
			// Quantity moved between the pre-check and the CAS.
			attempt.Outcome = domain.OutcomeInsufficientStock
			return attempt, nil

		case port.CommitConflict:
			if err := s.backoff(ctx); err != nil {
				attempt.Outcome = domain.OutcomeFailed
				attempt.Reason = "call budget exceeded"
				return attempt, fmt.Errorf("reserve %s: %w", req.ItemID, err)
			}

		default:
			attempt.Outcome = domain.OutcomeFailed
			attempt.Reason = "unknown commit status"
			return attempt, fmt.Errorf("reserve %s: unknown commit status %q", req.ItemID, result.Status)
		}
	}

	s.logger.Warn().Str("item_id", req.ItemID).Int("attempts", s.cfg.MaxAttempts).Msg("reservation contention exhausted")
	attempt.Outcome = domain.OutcomeFailed
	attempt.Reason = "contention exhausted"
	return attempt, ErrContentionExhausted
}

func (s *ReservationService) backoff(ctx context.Context) error {
	delay := s.cfg.BackoffMin
	if s.cfg.BackoffMax > s.cfg.BackoffMin {
		delay += rand.N(s.cfg.BackoffMax - s.cfg.BackoffMin)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReservationService) publishSettlement(ctx context.Context, req ReserveRequest, result port.CommitResult) bool {
	event := domain.SettlementEvent{
		EventID:          uuid.New().String(),
		ItemID:           req.ItemID,
		QuantityDelta:    -req.Quantity,
		ResultingVersion: result.NewVersion,
		OccurredAt:       time.Now().UTC(),
	}

	// The ledger mutation is the source of truth. A failed publish degrades
	// the outcome but never rolls the commit back.
	if err := s.notifier.PublishSettlement(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("item_id", req.ItemID).Int64("version", result.NewVersion).
			Msg("settlement publish failed, commit stands")
		return false
	}

	return true
}
