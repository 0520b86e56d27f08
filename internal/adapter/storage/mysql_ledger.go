package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tn1392/stock-reserve/internal/core/domain"
	"github.com/tn1392/stock-reserve/internal/port"
)

// Schema bootstraps the ledger table. Intended for tests and first run; real
// deployments own their migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
	item_id    VARCHAR(64) PRIMARY KEY,
	name       VARCHAR(255) NOT NULL DEFAULT '',
	quantity   INT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	status     VARCHAR(16) NOT NULL DEFAULT 'active',
	expires_at DATETIME NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT chk_quantity_non_negative CHECK (quantity >= 0)
)`

type MySQLLedger struct {
	db *sql.DB
}

func NewMySQLLedger(db *sql.DB) *MySQLLedger {
	return &MySQLLedger{db: db}
}

func (m *MySQLLedger) CreateItem(ctx context.Context, item domain.InventoryItem) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory_items (item_id, name, quantity, version, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, NOW(), NOW())`,
		item.ID, item.Name, item.Quantity, item.Status, item.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (m *MySQLLedger) ReadItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := m.db.QueryRowContext(ctx, `
		SELECT item_id, name, quantity, version, status, expires_at, created_at, updated_at
		FROM inventory_items WHERE item_id = ?`, itemID,
	).Scan(&item.ID, &item.Name, &item.Quantity, &item.Version, &item.Status,
		&item.ExpiresAt, &item.CreatedAt, &item.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}

	return &item, nil
}

// ApplyDelta performs the compare-and-swap in a single conditional UPDATE.
// The WHERE clause guards both the version token and the non-negative
// quantity invariant, so a losing race or an oversell attempt touches
// nothing. MySQL applies SET clauses left to right, so the status expression
// sees the already-updated quantity.
func (m *MySQLLedger) ApplyDelta(ctx context.Context, itemID string, delta int, expectedVersion int64) (port.CommitResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return port.CommitResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity = quantity + ?,
		    version = version + 1,
		    status = IF(quantity = 0, 'reserved_out', IF(status = 'reserved_out', 'active', status)),
		    updated_at = NOW()
		WHERE item_id = ? AND version = ? AND quantity + ? >= 0`,
		delta, itemID, expectedVersion, delta,
	)
	if err != nil {
		return port.CommitResult{}, fmt.Errorf("conditional update: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return port.CommitResult{}, fmt.Errorf("rows affected: %w", err)
	}

	if rows == 0 {
		// Classify inside the same tx: stale version vs short stock vs gone.
		var version int64
		var quantity int
		err := tx.QueryRowContext(ctx, `
			SELECT version, quantity FROM inventory_items WHERE item_id = ?`, itemID,
		).Scan(&version, &quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return port.CommitResult{}, port.ErrItemNotFound
		}
		if err != nil {
			return port.CommitResult{}, fmt.Errorf("classify miss: %w", err)
		}
		if version != expectedVersion {
			return port.CommitResult{Status: port.CommitConflict}, nil
		}
		return port.CommitResult{Status: port.CommitInsufficient}, nil
	}

	// The row is locked until commit, so this read is exact.
	var quantity int
	if err := tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory_items WHERE item_id = ?`, itemID,
	).Scan(&quantity); err != nil {
		return port.CommitResult{}, fmt.Errorf("read back quantity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return port.CommitResult{}, fmt.Errorf("commit: %w", err)
	}

	return port.CommitResult{
		Status:      port.CommitOK,
		NewVersion:  expectedVersion + 1,
		NewQuantity: quantity,
	}, nil
}
