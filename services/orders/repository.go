package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/checkout-saga/pkg/postgres"
)

type Repository interface {
	// CreatePending stores a new pending order with its lines.
	CreatePending(ctx context.Context, order *Order) error

	// FindPending returns the newest pending order of the user, or
	// ErrOrderNotFound.
	FindPending(ctx context.Context, userID string) (*Order, error)

	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// List returns orders newest first. An empty userID lists every order.
	List(ctx context.Context, userID string) ([]Order, error)

	// UpdateStatus moves the order to status if the state machine allows it.
	UpdateStatus(ctx context.Context, orderID, status string) error

	SetAddress(ctx context.Context, orderID, address string) error

	// Finalize attaches the address and marks the order paid in one step.
	Finalize(ctx context.Context, orderID, address string) error
}

// OrderRepository implements Repository on PostgreSQL.
type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) Repository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) CreatePending(ctx context.Context, order *Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.UserID, order.TotalPrice, order.Status, order.CreatedAt, order.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrPendingOrderExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, line := range order.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, i, line.ProductID, line.ProductName, line.Quantity, line.Price)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}

	return tx.Commit(ctx)
}

const selectOrder = `
	SELECT id::text, user_id, total_price::text, status, shipping_address, created_at, updated_at
	FROM orders
`

func (r *OrderRepository) FindPending(ctx context.Context, userID string) (*Order, error) {
	orders, err := r.queryOrders(ctx, selectOrder+`
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	orders, err := r.queryOrders(ctx, selectOrder+`WHERE id::text = $1`, orderID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return &orders[0], nil
}

func (r *OrderRepository) List(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return r.queryOrders(ctx, selectOrder+`ORDER BY created_at DESC`)
	}
	return r.queryOrders(ctx, selectOrder+`WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	return r.withLockedOrder(ctx, orderID, func(tx pgx.Tx, current string) error {
		if err := checkTransition(current, status); err != nil {
			return err
		}
		if current == status {
			return nil
		}
		_, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id::text = $1`, orderID, status)
		return err
	})
}

func (r *OrderRepository) SetAddress(ctx context.Context, orderID, address string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET shipping_address = $2, updated_at = NOW()
		WHERE id::text = $1
	`, orderID, address)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}

func (r *OrderRepository) Finalize(ctx context.Context, orderID, address string) error {
	return r.withLockedOrder(ctx, orderID, func(tx pgx.Tx, current string) error {
		if err := checkTransition(current, OrderStatusPaid); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE orders
			SET shipping_address = COALESCE(NULLIF($2, ''), shipping_address),
			    status = 'paid',
			    updated_at = NOW()
			WHERE id::text = $1
		`, orderID, address)
		return err
	})
}

// withLockedOrder runs fn with the order row locked and its current status.
func (r *OrderRepository) withLockedOrder(ctx context.Context, orderID string, fn func(tx pgx.Tx, status string) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id::text = $1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock order: %w", err)
	}

	if err := fn(tx, status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *OrderRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []Order
		ids    []string
	)
	for rows.Next() {
		var (
			order Order
			total string
		)
		if err := rows.Scan(&order.ID, &order.UserID, &total, &order.Status, &order.ShippingAddress, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		if order.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("invalid total_price %q: %w", total, err)
		}
		order.Items = []OrderLine{}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if lines, ok := items[orders[i].ID]; ok {
			orders[i].Items = lines
		}
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]OrderLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id::text, product_id, product_name, quantity, price::text
		FROM order_items
		WHERE order_id::text = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			price   string
			line    OrderLine
		)
		if err := rows.Scan(&orderID, &line.ProductID, &line.ProductName, &line.Quantity, &price); err != nil {
			return nil, err
		}
		if line.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		items[orderID] = append(items[orderID], line)
	}
	return items, rows.Err()
}
