package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/google/uuid"
)

// SagaActionRequest is the payload DTM posts to the inventory branches.
type SagaActionRequest struct {
	OrderID string      `json:"order_id" binding:"required"`
	Items   []StockItem `json:"items" binding:"required"`
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// BarrierRunner runs fn exactly once per DTM branch operation.
type BarrierRunner interface {
	Run(ctx context.Context, query map[string][]string, fn func(StockTx) error) error
}

// DTMBarrier implements BarrierRunner with dtmcli branch barriers on a
// database/sql handle.
type DTMBarrier struct {
	db *sql.DB
}

func NewDTMBarrier(db *sql.DB) *DTMBarrier {
	dtmcli.SetCurrentDBType(dtmcli.DBTypePostgres)
	return &DTMBarrier{db: db}
}

func (b *DTMBarrier) Run(ctx context.Context, query map[string][]string, fn func(StockTx) error) error {
	barrier, err := dtmcli.BarrierFromQuery(query)
	if err != nil {
		return fmt.Errorf("invalid barrier query: %w", err)
	}

	return barrier.CallWithDB(b.db, func(tx *sql.Tx) error {
		return fn(&sqlStockTx{tx: tx})
	})
}

// ReserveBranch is the DTM action: reserve every item of the order.
func (uc *InventoryUseCase) ReserveBranch(ctx context.Context, runner BarrierRunner, query map[string][]string, req SagaActionRequest) error {
	merged, err := mergeItems(req.Items)
	if err != nil {
		return err
	}

	return runner.Run(ctx, query, func(tx StockTx) error {
		_, err := uc.reserve(ctx, tx, req.OrderID, merged)
		return err
	})
}

// CompensateBranch is the DTM compensation: give back what ReserveBranch
// took. The barrier skips it when the action never ran.
func (uc *InventoryUseCase) CompensateBranch(ctx context.Context, runner BarrierRunner, query map[string][]string, req SagaActionRequest) error {
	merged, err := mergeItems(req.Items)
	if err != nil {
		return err
	}

	return runner.Run(ctx, query, func(tx StockTx) error {
		_, err := uc.release(ctx, tx, req.OrderID, merged)
		return err
	})
}

// sqlStockTx implements StockTx on a lib/pq transaction.
type sqlStockTx struct {
	tx *sql.Tx
}

func (t *sqlStockTx) GetProductForUpdate(ctx context.Context, productID string) (*ProductInventory, error) {
	var inventory ProductInventory
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, current_stock, created_at, updated_at
		FROM products_inventory
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&inventory.ID, &inventory.CurrentStock, &inventory.CreatedAt, &inventory.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product with lock: %w", err)
	}
	return &inventory, nil
}

func (t *sqlStockTx) DecreaseStock(ctx context.Context, productID, orderID string, quantity int) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products_inventory
		SET current_stock = current_stock - $2,
		    updated_at = NOW()
		WHERE id = $1 AND current_stock >= $2
		RETURNING current_stock
	`, productID, quantity).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w for product %s", ErrInsufficientStock, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrease stock: %w", err)
	}

	return stock, t.insertMovement(ctx, productID, orderID, quantity, MovementTypeDecreased)
}

func (t *sqlStockTx) IncreaseStock(ctx context.Context, productID, orderID string, quantity int) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products_inventory
		SET current_stock = current_stock + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING current_stock
	`, productID, quantity).Scan(&stock)
	if err != nil {
		return 0, fmt.Errorf("failed to increase stock: %w", err)
	}

	return stock, t.insertMovement(ctx, productID, orderID, quantity, MovementTypeIncreased)
}

func (t *sqlStockTx) insertMovement(ctx context.Context, productID, orderID string, quantity int, movementType string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, inventory_id, order_id, change_quantity, movement_type)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, uuid.New().String(), productID, orderID, quantity, movementType)
	if err != nil {
		return fmt.Errorf("failed to insert movement record: %w", err)
	}
	return nil
}
