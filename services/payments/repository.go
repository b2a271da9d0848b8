package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ReceiptWriter changes receipts inside an open transaction.
type ReceiptWriter interface {
	InsertReceipt(ctx context.Context, receipt *Receipt) error
	// DeleteReceipt reports whether a receipt was removed.
	DeleteReceipt(ctx context.Context, receiptID string) (bool, error)
	// DeleteReceiptsByOrder returns the ids of the removed receipts.
	DeleteReceiptsByOrder(ctx context.Context, orderID string) ([]string, error)
}

type ReceiptRepository interface {
	// WithTx runs fn in a transaction that commits when fn returns nil.
	WithTx(ctx context.Context, fn func(ReceiptWriter) error) error
	GetReceipt(ctx context.Context, receiptID string) (*Receipt, error)
}

// SQL shared by the pgx repository and the DTM barrier writer.
const (
	insertReceiptSQL = `
		INSERT INTO receipts (id, order_id, user_id, total_amount, card_last4, expiry_date, ship_info, user_email, charge_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
	`
	insertReceiptItemSQL = `
		INSERT INTO receipt_items (receipt_id, product_id, product_name, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
	`
	deleteReceiptSQL        = `DELETE FROM receipts WHERE id::text = $1 RETURNING id::text`
	deleteReceiptsByOrderSQL = `DELETE FROM receipts WHERE order_id = $1 RETURNING id::text`
)

// PostgresReceiptRepository implements ReceiptRepository on pgx.
type PostgresReceiptRepository struct {
	db *pgxpool.Pool
}

func NewReceiptRepository(db *pgxpool.Pool) ReceiptRepository {
	return &PostgresReceiptRepository{db: db}
}

func (r *PostgresReceiptRepository) WithTx(ctx context.Context, fn func(ReceiptWriter) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgxReceiptWriter{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresReceiptRepository) GetReceipt(ctx context.Context, receiptID string) (*Receipt, error) {
	var (
		receipt  Receipt
		amount   string
		shipInfo string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id::text, order_id, user_id, total_amount::text, card_last4, expiry_date, ship_info::text, user_email, charge_id, created_at
		FROM receipts
		WHERE id::text = $1
	`, receiptID).Scan(&receipt.ID, &receipt.OrderID, &receipt.UserID, &amount, &receipt.CardLast4,
		&receipt.ExpiryDate, &shipInfo, &receipt.UserEmail, &receipt.ChargeID, &receipt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, receiptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	if receipt.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid total_amount %q: %w", amount, err)
	}
	receipt.ShipInfo = json.RawMessage(shipInfo)

	rows, err := r.db.Query(ctx, `
		SELECT product_id, product_name, quantity, price::text
		FROM receipt_items
		WHERE receipt_id::text = $1
		ORDER BY id
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt items: %w", err)
	}
	defer rows.Close()

	receipt.Items = []ReceiptItem{}
	for rows.Next() {
		var (
			item  ReceiptItem
			price string
		)
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return nil, err
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		receipt.Items = append(receipt.Items, item)
	}
	return &receipt, rows.Err()
}

type pgxReceiptWriter struct {
	tx pgx.Tx
}

func (w *pgxReceiptWriter) InsertReceipt(ctx context.Context, receipt *Receipt) error {
	_, err := w.tx.Exec(ctx, insertReceiptSQL,
		receipt.ID, receipt.OrderID, receipt.UserID, receipt.Amount, receipt.CardLast4,
		receipt.ExpiryDate, string(receipt.ShipInfo), receipt.UserEmail, receipt.ChargeID, receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range receipt.Items {
		batch.Queue(insertReceiptItemSQL, receipt.ID, item.ProductID, item.ProductName, item.Quantity, item.Price)
	}
	if err := w.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert receipt items: %w", err)
	}
	return nil
}

func (w *pgxReceiptWriter) DeleteReceipt(ctx context.Context, receiptID string) (bool, error) {
	ids, err := w.collectIDs(ctx, deleteReceiptSQL, receiptID)
	return len(ids) > 0, err
}

func (w *pgxReceiptWriter) DeleteReceiptsByOrder(ctx context.Context, orderID string) ([]string, error) {
	return w.collectIDs(ctx, deleteReceiptsByOrderSQL, orderID)
}

func (w *pgxReceiptWriter) collectIDs(ctx context.Context, sql, arg string) ([]string, error) {
	rows, err := w.tx.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to delete receipts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to delete receipts: %w", err)
	}
	return ids, nil
}
