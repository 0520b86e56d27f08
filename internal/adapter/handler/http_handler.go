package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tn1392/stock-reserve/internal/adapter/fetch"
	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/core/service"
	"github.com/tn1392/stock-reserve/internal/port"
)

type HTTPHandler struct {
	reservations    *service.ReservationService
	prices          *service.PriceService
	ledger          port.StockLedger
	secondarySource string
}

func NewHTTPHandler(reservations *service.ReservationService, prices *service.PriceService, ledger port.StockLedger, secondarySource string) *HTTPHandler {
	return &HTTPHandler{
		reservations:    reservations,
		prices:          prices,
		ledger:          ledger,
		secondarySource: secondarySource,
	}
}

type ReserveHTTPRequest struct {
	ItemID         string `json:"item_id"`
	Quantity       int    `json:"quantity"`
	PriceKey       string `json:"price_key,omitempty"`
	MaxStalenessMS int64  `json:"max_staleness_ms,omitempty"`
}

type ReserveHTTPResponse struct {
	Outcome     domain.ReservationOutcome `json:"outcome"`
	NewVersion  int64                     `json:"new_version,omitempty"`
	NewQuantity int                       `json:"new_quantity,omitempty"`
	Quote       *domain.PriceQuote        `json:"quote,omitempty"`
	Message     string                    `json:"message,omitempty"`
}

func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReserveHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ReserveHTTPResponse{Outcome: domain.OutcomeFailed, Message: "invalid request body"})
		return
	}
	if req.ItemID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, ReserveHTTPResponse{Outcome: domain.OutcomeFailed, Message: "missing required fields"})
		return
	}

	attempt, err := h.reservations.Reserve(r.Context(), service.ReserveRequest{
		ItemID:       req.ItemID,
		Quantity:     req.Quantity,
		PriceKey:     req.PriceKey,
		MaxStaleness: time.Duration(req.MaxStalenessMS) * time.Millisecond,
	})
	if err != nil {
		switch {
		case errors.Is(err, port.ErrItemNotFound):
			writeJSON(w, http.StatusNotFound, ReserveHTTPResponse{Outcome: attempt.Outcome, Message: "unknown item"})
		case errors.Is(err, service.ErrContentionExhausted):
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, ReserveHTTPResponse{Outcome: attempt.Outcome, Message: "contention exhausted, retry later"})
		default:
			writeJSON(w, http.StatusInternalServerError, ReserveHTTPResponse{Outcome: domain.OutcomeFailed, Message: "internal error"})
		}
		return
	}

	switch attempt.Outcome {
	case domain.OutcomeInsufficientStock:
		writeJSON(w, http.StatusGone, ReserveHTTPResponse{Outcome: attempt.Outcome, Message: "sold out"})
	default:
		writeJSON(w, http.StatusOK, ReserveHTTPResponse{
			Outcome:     attempt.Outcome,
			NewVersion:  attempt.NewVersion,
			NewQuantity: attempt.NewQuantity,
			Quote:       attempt.Quote,
		})
	}
}

type PriceHTTPResponse struct {
	Quote         domain.PriceQuote `json:"quote"`
	RecoveryPrice decimal.Decimal   `json:"recovery_price"`
}

func (h *HTTPHandler) Price(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	var maxStaleness time.Duration
	if raw := r.URL.Query().Get("max_staleness_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			http.Error(w, "invalid max_staleness_ms", http.StatusBadRequest)
			return
		}
		maxStaleness = time.Duration(ms) * time.Millisecond
	}

	quote, err := h.prices.GetPrice(r.Context(), key, maxStaleness)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PriceHTTPResponse{
		Quote:         quote,
		RecoveryPrice: fetch.RecoveryPrice(quote, h.secondarySource),
	})
}

type CreateItemHTTPRequest struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateItemHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Quantity < 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	err := h.ledger.CreateItem(r.Context(), domain.InventoryItem{
		ID:        req.ID,
		Name:      req.Name,
		Quantity:  req.Quantity,
		Status:    domain.ItemStatusActive,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.prices != nil {
		h.prices.RegisterSKU(req.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
