package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockTx is an open transaction over the inventory tables.
type StockTx interface {
	// GetProductForUpdate locks the product row until the transaction ends.
	GetProductForUpdate(ctx context.Context, productID string) (*ProductInventory, error)
	DecreaseStock(ctx context.Context, productID, orderID string, quantity int) (int, error)
	IncreaseStock(ctx context.Context, productID, orderID string, quantity int) (int, error)
}

// Tx is a StockTx the caller has to finish.
type Tx interface {
	StockTx
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// InventoryRepository is the persistence port of the ledger.
type InventoryRepository interface {
	BeginTx(ctx context.Context) (Tx, error)
	GetProductInventory(ctx context.Context, productID string) (*ProductInventory, error)
}

// PostgresInventoryRepository implements InventoryRepository on pgx.
type PostgresInventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) InventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

func (r *PostgresInventoryRepository) GetProductInventory(ctx context.Context, productID string) (*ProductInventory, error) {
	var inventory ProductInventory
	err := r.db.QueryRow(ctx, `
		SELECT id, current_stock, created_at, updated_at
		FROM products_inventory
		WHERE id = $1
	`, productID).Scan(&inventory.ID, &inventory.CurrentStock, &inventory.CreatedAt, &inventory.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &inventory, nil
}

func (r *PostgresInventoryRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// PostgresTx implements Tx on a pgx transaction.
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *PostgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (t *PostgresTx) GetProductForUpdate(ctx context.Context, productID string) (*ProductInventory, error) {
	var inventory ProductInventory
	err := t.tx.QueryRow(ctx, `
		SELECT id, current_stock, created_at, updated_at
		FROM products_inventory
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&inventory.ID, &inventory.CurrentStock, &inventory.CreatedAt, &inventory.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product with lock: %w", err)
	}
	return &inventory, nil
}

func (t *PostgresTx) DecreaseStock(ctx context.Context, productID, orderID string, quantity int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products_inventory
		SET current_stock = current_stock - $2,
		    updated_at = NOW()
		WHERE id = $1 AND current_stock >= $2
		RETURNING current_stock
	`, productID, quantity).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w for product %s", ErrInsufficientStock, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrease stock: %w", err)
	}

	if err := t.insertMovement(ctx, productID, orderID, quantity, MovementTypeDecreased); err != nil {
		return 0, err
	}
	return stock, nil
}

func (t *PostgresTx) IncreaseStock(ctx context.Context, productID, orderID string, quantity int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products_inventory
		SET current_stock = current_stock + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING current_stock
	`, productID, quantity).Scan(&stock)
	if err != nil {
		return 0, fmt.Errorf("failed to increase stock: %w", err)
	}

	if err := t.insertMovement(ctx, productID, orderID, quantity, MovementTypeIncreased); err != nil {
		return 0, err
	}
	return stock, nil
}

func (t *PostgresTx) insertMovement(ctx context.Context, productID, orderID string, quantity int, movementType string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_movements (id, inventory_id, order_id, change_quantity, movement_type)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, uuid.New().String(), productID, orderID, quantity, movementType)
	if err != nil {
		return fmt.Errorf("failed to insert movement record: %w", err)
	}
	return nil
}
