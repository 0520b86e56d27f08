// Contention probe: hammers one item with concurrent reservations and checks
// that commits match stock exactly, with no negative excursion.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/tn1392/stock-reserve/internal/adapter/storage"
	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/stockreserve?parseTime=true"
	itemID        = "stress-item"
	initialStock  = 20
	totalRequests = 50
)

type dropNotifier struct{}

func (dropNotifier) PublishSettlement(context.Context, domain.SettlementEvent) error { return nil }
func (dropNotifier) PublishPriceUpdate(context.Context, domain.PriceUpdatedEvent) error {
	return nil
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := context.Background()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}

	if _, err := db.ExecContext(ctx, storage.Schema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	// Reset the probe item.
	db.ExecContext(ctx, `DELETE FROM inventory_items WHERE item_id = ?`, itemID)
	ledger := storage.NewMySQLLedger(db)
	if err := ledger.CreateItem(ctx, domain.InventoryItem{
		ID:       itemID,
		Name:     "stress probe",
		Quantity: initialStock,
		Status:   domain.ItemStatusActive,
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to create item")
	}

	// High contention wants more retry headroom than the serving default.
	svc := service.NewReservationService(ledger, dropNotifier{}, nil, service.ReservationConfig{
		MaxAttempts: 20,
		BackoffMin:  5 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
		CallBudget:  10 * time.Second,
	}, logger)

	var committed, soldOut, failed atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			attempt, err := svc.Reserve(ctx, service.ReserveRequest{ItemID: itemID, Quantity: 1})
			switch {
			case err == nil && attempt.Outcome == domain.OutcomeCommitted:
				committed.Add(1)
			case err == nil && attempt.Outcome == domain.OutcomeInsufficientStock:
				soldOut.Add(1)
			default:
				failed.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	item, err := ledger.ReadItem(ctx, itemID)
	if err != nil || item == nil {
		logger.Fatal().Err(err).Msg("failed to read back item")
	}

	fmt.Println("========== STRESS RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Committed:        %d\n", committed.Load())
	fmt.Printf("Sold Out:         %d\n", soldOut.Load())
	fmt.Printf("Failed:           %d\n", failed.Load())
	fmt.Printf("Final Quantity:   %d\n", item.Quantity)
	fmt.Printf("Final Version:    %d\n", item.Version)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("====================================")

	if committed.Load() == initialStock && item.Quantity == 0 {
		fmt.Println("PASS: stock depleted exactly, no oversell")
	} else {
		fmt.Printf("FAIL: expected %d commits and quantity 0, got %d commits and quantity %d\n",
			initialStock, committed.Load(), item.Quantity)
	}
	if int(item.Version) == int(committed.Load()) {
		fmt.Println("PASS: version equals committed mutation count")
	} else {
		fmt.Printf("FAIL: version %d != committed %d\n", item.Version, committed.Load())
	}
}
