package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/google/uuid"
)

// BarrierRunner runs fn exactly once per DTM branch operation.
type BarrierRunner interface {
	Run(ctx context.Context, query map[string][]string, fn func(ReceiptWriter) error) error
}

// DTMBarrier implements BarrierRunner with dtmcli branch barriers.
type DTMBarrier struct {
	db *sql.DB
}

func NewDTMBarrier(db *sql.DB) *DTMBarrier {
	dtmcli.SetCurrentDBType(dtmcli.DBTypePostgres)
	return &DTMBarrier{db: db}
}

func (b *DTMBarrier) Run(ctx context.Context, query map[string][]string, fn func(ReceiptWriter) error) error {
	barrier, err := dtmcli.BarrierFromQuery(query)
	if err != nil {
		return fmt.Errorf("invalid barrier query: %w", err)
	}

	return barrier.CallWithDB(b.db, func(tx *sql.Tx) error {
		return fn(&sqlReceiptWriter{tx: tx})
	})
}

// ChargeAndIssueBranch is the DTM action: charge the card and store the
// receipt in the same barrier transaction.
func (uc *PaymentUseCase) ChargeAndIssueBranch(ctx context.Context, runner BarrierRunner, query map[string][]string, req SagaPaymentRequest) (string, error) {
	receipt, err := NewReceipt(uuid.New().String(), req.CreateReceiptRequest)
	if err != nil {
		return "", err
	}

	err = runner.Run(ctx, query, func(w ReceiptWriter) error {
		chargeID, err := uc.Charge(ctx, ChargeRequest{
			OrderID:     req.OrderID,
			UserID:      req.UserID,
			Amount:      req.Amount,
			PaymentInfo: req.PaymentInfo,
		})
		if err != nil {
			return err
		}
		receipt.ChargeID = chargeID
		return w.InsertReceipt(ctx, receipt)
	})
	if err != nil {
		return "", err
	}

	uc.add(ctx, uc.receiptCounter, EventReceiptIssued)
	uc.publish(ctx, newReceiptEvent(EventReceiptIssued, receipt))
	return receipt.ID, nil
}

// RevokeBranch is the DTM compensation: drop every receipt of the order.
func (uc *PaymentUseCase) RevokeBranch(ctx context.Context, runner BarrierRunner, query map[string][]string, req SagaPaymentRequest) error {
	log.Printf("↩️ [REVOKE BRANCH] OrderID=%s", req.OrderID)

	var revoked []string
	err := runner.Run(ctx, query, func(w ReceiptWriter) error {
		var err error
		revoked, err = w.DeleteReceiptsByOrder(ctx, req.OrderID)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range revoked {
		uc.add(ctx, uc.receiptCounter, EventReceiptRevoked)
		uc.publish(ctx, ReceiptEvent{
			Type:      EventReceiptRevoked,
			ReceiptID: id,
			OrderID:   req.OrderID,
			UserID:    req.UserID,
			Amount:    req.Amount,
		})
	}
	return nil
}

// sqlReceiptWriter implements ReceiptWriter on a lib/pq transaction.
type sqlReceiptWriter struct {
	tx *sql.Tx
}

func (w *sqlReceiptWriter) InsertReceipt(ctx context.Context, receipt *Receipt) error {
	_, err := w.tx.ExecContext(ctx, insertReceiptSQL,
		receipt.ID, receipt.OrderID, receipt.UserID, receipt.Amount, receipt.CardLast4,
		receipt.ExpiryDate, string(receipt.ShipInfo), receipt.UserEmail, receipt.ChargeID, receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	for _, item := range receipt.Items {
		if _, err := w.tx.ExecContext(ctx, insertReceiptItemSQL, receipt.ID, item.ProductID, item.ProductName, item.Quantity, item.Price); err != nil {
			return fmt.Errorf("failed to insert receipt items: %w", err)
		}
	}
	return nil
}

func (w *sqlReceiptWriter) DeleteReceipt(ctx context.Context, receiptID string) (bool, error) {
	ids, err := w.collectIDs(ctx, deleteReceiptSQL, receiptID)
	return len(ids) > 0, err
}

func (w *sqlReceiptWriter) DeleteReceiptsByOrder(ctx context.Context, orderID string) ([]string, error) {
	return w.collectIDs(ctx, deleteReceiptsByOrderSQL, orderID)
}

func (w *sqlReceiptWriter) collectIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := w.tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to delete receipts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
