package main

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCase is the entry point of the gateway: order creation, the
// payment saga and the order pass-throughs.
type CheckoutUseCase struct {
	cart       CartProvider
	orders     OrderStore
	lock       UserLock
	engine     SagaEngine
	engineName string
	tracer     trace.Tracer
	metrics    *SagaMetrics
}

func NewCheckoutUseCase(
	cart CartProvider,
	orders OrderStore,
	lock UserLock,
	engine SagaEngine,
	engineName string,
	tracer trace.Tracer,
	metrics *SagaMetrics,
) *CheckoutUseCase {
	if lock == nil {
		lock = noopLock{}
	}
	return &CheckoutUseCase{
		cart:       cart,
		orders:     orders,
		lock:       lock,
		engine:     engine,
		engineName: engineName,
		tracer:     tracer,
		metrics:    metrics,
	}
}

// CreateOrder turns the caller's cart into a pending order.
func (uc *CheckoutUseCase) CreateOrder(ctx context.Context, creds Credentials) (string, error) {
	ctx, span := uc.tracer.Start(ctx, "checkout.create_order")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", creds.UserID))

	log.Printf("➡️ [CREATE ORDER] UserID=%s", creds.UserID)

	unlock, err := uc.lock.Lock(ctx, creds.UserID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer unlock()

	pending, err := uc.orders.FindPending(ctx, creds.UserID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if pending != nil {
		return "", fmt.Errorf("%w: %s", ErrPendingOrderExists, pending.ID)
	}

	items, err := uc.cart.Snapshot(ctx, creds.UserID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	orderID, err := uc.orders.CreatePending(ctx, creds.UserID, linesFromCart(items))
	if err != nil {
		span.RecordError(err)
		log.Printf("❌ Failed to create order for UserID=%s: %v", creds.UserID, err)
		return "", err
	}
	span.SetAttributes(attribute.String("order_id", orderID))

	// The order already exists, so a failed clear only leaves stale items.
	if err := uc.cart.Clear(ctx, creds.UserID); err != nil {
		log.Printf("⚠️ Failed to clear cart for UserID=%s after OrderID=%s: %v", creds.UserID, orderID, err)
	}

	log.Printf("✅ [CREATE ORDER] OrderID=%s | UserID=%s | Lines=%d", orderID, creds.UserID, len(items))
	return orderID, nil
}

// ProcessPayment pays the caller's pending order. Failures after the saga
// started come back as *SagaError.
func (uc *CheckoutUseCase) ProcessPayment(ctx context.Context, creds Credentials, req ProcessPaymentRequest) error {
	ctx, span := uc.tracer.Start(ctx, "checkout.process_payment")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", creds.UserID))

	order, err := uc.orders.FindPending(ctx, creds.UserID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if order == nil {
		return ErrNoPendingOrder
	}
	span.SetAttributes(attribute.String("order_id", order.ID))

	log.Printf("➡️ [PROCESS PAYMENT] OrderID=%s | UserID=%s | Total=%s", order.ID, creds.UserID, order.TotalPrice)

	err = uc.engine.Execute(ctx, Checkout{
		Credentials: creds,
		Order:       order,
		PaymentInfo: req.PaymentInfo,
		ShipInfo:    req.ShipInfo,
	})
	if err != nil {
		span.RecordError(err)
		uc.metrics.Outcome(ctx, uc.engineName, "compensated")
		return &SagaError{OrderID: order.ID, Err: err}
	}

	uc.metrics.Outcome(ctx, uc.engineName, "completed")
	return nil
}

// CheckPending returns the pending order of userID, or of the caller when
// userID is empty. Only admins may look at other users.
func (uc *CheckoutUseCase) CheckPending(ctx context.Context, creds Credentials, userID string) (*Order, error) {
	if userID == "" || !creds.IsAdmin() {
		userID = creds.UserID
	}
	return uc.orders.FindPending(ctx, userID)
}

// ListOrders returns the caller's orders, or every order for admins.
func (uc *CheckoutUseCase) ListOrders(ctx context.Context, creds Credentials) ([]Order, error) {
	return uc.orders.List(ctx, creds.UserID, creds.IsAdmin())
}

func (uc *CheckoutUseCase) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	if status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidRequest)
	}
	log.Printf("➡️ [UPDATE ORDER] OrderID=%s | Status=%s", orderID, status)
	return uc.orders.SetStatus(ctx, orderID, status)
}
