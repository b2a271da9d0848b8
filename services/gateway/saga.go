package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	stepReserve  = "reserve_inventory"
	stepCharge   = "charge"
	stepAddress  = "attach_address"
	stepReceipt  = "issue_receipt"
	stepFinalize = "finalize_order"
	stepRevoke   = "revoke_receipt"
	stepRelease  = "release_inventory"
)

// SagaAttempt records what one checkout run has done so far. It only lives
// for the duration of that run.
type SagaAttempt struct {
	OrderID        string
	Reserved       []OrderLine
	ChargeID       string
	AddressApplied bool
	ReceiptID      string
}

func (a *SagaAttempt) Charged() bool { return a.ChargeID != "" }

func (a *SagaAttempt) ReceiptIssued() bool { return a.ReceiptID != "" }

// LocalSaga runs the checkout steps in process and compensates in reverse
// order when a step fails.
type LocalSaga struct {
	orders   OrderStore
	ledger   Ledger
	payments PaymentGateway
	receipts ReceiptService
	tracer   trace.Tracer
	metrics  *SagaMetrics
}

func NewLocalSaga(
	orders OrderStore,
	ledger Ledger,
	payments PaymentGateway,
	receipts ReceiptService,
	tracer trace.Tracer,
	metrics *SagaMetrics,
) *LocalSaga {
	return &LocalSaga{
		orders:   orders,
		ledger:   ledger,
		payments: payments,
		receipts: receipts,
		tracer:   tracer,
		metrics:  metrics,
	}
}

// Execute is not cancelled by the caller: once stock is touched it either
// finishes or compensates.
func (s *LocalSaga) Execute(ctx context.Context, checkout Checkout) (err error) {
	ctx = context.WithoutCancel(ctx)
	order := checkout.Order
	attempt := &SagaAttempt{OrderID: order.ID}

	ctx, span := s.tracer.Start(ctx, "saga.checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("user_id", checkout.Credentials.UserID),
	)

	log.Printf("🚀 Starting SAGA | OrderID: %s | UserID: %s | Lines: %d", order.ID, checkout.Credentials.UserID, len(order.Items))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.compensate(ctx, attempt)
		}
	}()

	for _, line := range order.Items {
		err := s.step(ctx, stepReserve, func(ctx context.Context) error {
			return s.ledger.Reserve(ctx, order.ID, line.ProductID, line.Quantity)
		})
		if err != nil {
			return err
		}
		attempt.Reserved = append(attempt.Reserved, line)
	}

	err = s.step(ctx, stepCharge, func(ctx context.Context) error {
		chargeID, err := s.payments.Charge(ctx, ChargeRequest{
			OrderID:     order.ID,
			UserID:      checkout.Credentials.UserID,
			Amount:      order.TotalPrice,
			PaymentInfo: checkout.PaymentInfo,
		})
		attempt.ChargeID = chargeID
		return err
	})
	if err != nil {
		return err
	}

	if address := checkout.ShipInfo.Address(); address != "" {
		err = s.step(ctx, stepAddress, func(ctx context.Context) error {
			return s.orders.SetAddress(ctx, order.ID, address)
		})
		if err != nil {
			return err
		}
		attempt.AddressApplied = true
	}

	err = s.step(ctx, stepReceipt, func(ctx context.Context) error {
		receiptID, err := s.receipts.Issue(ctx, checkout.receiptRequest(attempt.ChargeID))
		attempt.ReceiptID = receiptID
		return err
	})
	if err != nil {
		return err
	}

	err = s.step(ctx, stepFinalize, func(ctx context.Context) error {
		return s.orders.SetStatus(ctx, order.ID, OrderStatusPaid)
	})
	if err != nil {
		return err
	}

	log.Printf("✅ SAGA completed | OrderID: %s | ReceiptID: %s", order.ID, attempt.ReceiptID)
	return nil
}

// step runs one saga step inside its own span.
func (s *LocalSaga) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "saga."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("❌ SAGA step %s failed: %v", name, err)
		return err
	}
	return nil
}

// compensate undoes the attempt in reverse order. Failures are logged and
// counted but never returned: the caller keeps the original error.
func (s *LocalSaga) compensate(ctx context.Context, attempt *SagaAttempt) {
	ctx, span := s.tracer.Start(ctx, "saga.compensate")
	defer span.End()

	log.Printf("↩️ Compensating SAGA | OrderID: %s | Reserved: %d | Receipt: %q", attempt.OrderID, len(attempt.Reserved), attempt.ReceiptID)

	if attempt.ReceiptIssued() {
		err := s.receipts.Revoke(ctx, attempt.ReceiptID)
		s.compensated(ctx, span, attempt.OrderID, stepRevoke, err)
	}

	for i := len(attempt.Reserved) - 1; i >= 0; i-- {
		line := attempt.Reserved[i]
		err := s.ledger.Release(ctx, attempt.OrderID, line.ProductID, line.Quantity)
		s.compensated(ctx, span, attempt.OrderID, stepRelease, err)
	}
}

func (s *LocalSaga) compensated(ctx context.Context, span trace.Span, orderID, step string, err error) {
	s.metrics.Compensation(ctx, step, err)
	if err != nil {
		span.RecordError(err)
		log.Printf("❌ COMPENSATION FAILED | OrderID: %s | Step: %s | Error: %v", orderID, step, err)
		return
	}
	log.Printf("✅ Compensation %s done | OrderID: %s", step, orderID)
}
