package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const publishTimeout = 5 * time.Second

// PaymentGateway charges a card.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

// PaymentUseCase charges orders and keeps their receipts.
type PaymentUseCase struct {
	repository ReceiptRepository
	gateway    PaymentGateway
	publisher  Publisher
	tracer     trace.Tracer

	chargeCounter  metric.Int64Counter
	receiptCounter metric.Int64Counter
}

func NewPaymentUseCase(
	repository ReceiptRepository,
	gateway PaymentGateway,
	publisher Publisher,
	tracer trace.Tracer,
	meter metric.Meter,
) *PaymentUseCase {
	chargeCounter, err := meter.Int64Counter("payments.charges",
		metric.WithDescription("Charge attempts by outcome."))
	if err != nil {
		log.Printf("⚠️ failed to create charges counter: %v", err)
	}
	receiptCounter, err := meter.Int64Counter("payments.receipts",
		metric.WithDescription("Receipts issued and revoked."))
	if err != nil {
		log.Printf("⚠️ failed to create receipts counter: %v", err)
	}

	if publisher == nil {
		publisher = noopPublisher{}
	}

	return &PaymentUseCase{
		repository:     repository,
		gateway:        gateway,
		publisher:      publisher,
		tracer:         tracer,
		chargeCounter:  chargeCounter,
		receiptCounter: receiptCounter,
	}
}

// Charge asks the gateway for a charge. Declines wrap ErrPaymentRejected.
func (uc *PaymentUseCase) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	ctx, span := uc.tracer.Start(ctx, "payments.charge")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	log.Printf("➡️ [CHARGE] OrderID=%s | UserID=%s | Amount=%s", req.OrderID, req.UserID, req.Amount)

	chargeID, err := uc.gateway.Charge(ctx, req)
	if err != nil {
		span.RecordError(err)
		uc.add(ctx, uc.chargeCounter, "rejected")
		log.Printf("❌ CHARGE REJECTED | OrderID=%s | Error=%v", req.OrderID, err)
		return "", err
	}

	uc.add(ctx, uc.chargeCounter, "accepted")
	log.Printf("✅ [CHARGE] Success: OrderID=%s | ChargeID=%s", req.OrderID, chargeID)
	return chargeID, nil
}

// IssueReceipt stores the receipt and announces it.
func (uc *PaymentUseCase) IssueReceipt(ctx context.Context, req CreateReceiptRequest) (string, error) {
	ctx, span := uc.tracer.Start(ctx, "payments.issue_receipt")
	defer span.End()

	receipt, err := NewReceipt(uuid.New().String(), req)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("order_id", receipt.OrderID), attribute.String("receipt_id", receipt.ID))

	err = uc.repository.WithTx(ctx, func(w ReceiptWriter) error {
		return w.InsertReceipt(ctx, receipt)
	})
	if err != nil {
		span.RecordError(err)
		log.Printf("❌ Failed to create receipt for OrderID=%s: %v", receipt.OrderID, err)
		return "", fmt.Errorf("failed to create receipt: %w", err)
	}

	uc.add(ctx, uc.receiptCounter, EventReceiptIssued)
	log.Printf("✅ [RECEIPT] Created %s for OrderID=%s", receipt.ID, receipt.OrderID)
	uc.publish(ctx, newReceiptEvent(EventReceiptIssued, receipt))
	return receipt.ID, nil
}

// RevokeReceipt deletes a receipt. Unknown ids succeed so retries are safe.
func (uc *PaymentUseCase) RevokeReceipt(ctx context.Context, receiptID string) error {
	ctx, span := uc.tracer.Start(ctx, "payments.revoke_receipt")
	defer span.End()
	span.SetAttributes(attribute.String("receipt_id", receiptID))

	log.Printf("↩️ [REVOKE RECEIPT] ReceiptID=%s", receiptID)

	receipt, err := uc.repository.GetReceipt(ctx, receiptID)
	if errors.Is(err, ErrReceiptNotFound) {
		log.Printf("ℹ️ [IDEMPOTENCY] Receipt %s already gone", receiptID)
		return nil
	}
	if err != nil {
		return err
	}

	var deleted bool
	err = uc.repository.WithTx(ctx, func(w ReceiptWriter) error {
		deleted, err = w.DeleteReceipt(ctx, receiptID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to revoke receipt: %w", err)
	}

	if deleted {
		uc.add(ctx, uc.receiptCounter, EventReceiptRevoked)
		uc.publish(ctx, newReceiptEvent(EventReceiptRevoked, receipt))
	}
	log.Printf("✅ [REVOKE RECEIPT] Success: ReceiptID=%s", receiptID)
	return nil
}

func (uc *PaymentUseCase) GetReceipt(ctx context.Context, receiptID string) (*Receipt, error) {
	return uc.repository.GetReceipt(ctx, receiptID)
}

// publish sends the event in the background. Failures are only logged.
func (uc *PaymentUseCase) publish(ctx context.Context, event ReceiptEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := uc.publisher.Publish(ctx, event); err != nil {
			log.Printf("⚠️ Failed to publish %s for ReceiptID=%s: %v", event.Type, event.ReceiptID, err)
		}
	}()
}

func (uc *PaymentUseCase) add(ctx context.Context, counter metric.Int64Counter, outcome string) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
