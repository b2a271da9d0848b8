package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrderUseCase holds the order lifecycle rules.
type OrderUseCase struct {
	repository Repository
	tracer     trace.Tracer
}

func NewOrderUseCase(repository Repository, tracer trace.Tracer) *OrderUseCase {
	return &OrderUseCase{
		repository: repository,
		tracer:     tracer,
	}
}

// CreatePending stores a pending order snapshotting the given lines.
func (uc *OrderUseCase) CreatePending(ctx context.Context, req CreateOrderRequest) (string, error) {
	ctx, span := uc.tracer.Start(ctx, "orders.create_pending")
	defer span.End()

	order, err := NewOrder(uuid.New().String(), req.UserID, req.Items)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("order_id", order.ID), attribute.String("user_id", order.UserID))

	log.Printf("➡️ [CREATE ORDER] OrderID: %s | UserID: %s | Total: %s", order.ID, order.UserID, order.TotalPrice)

	if err := uc.repository.CreatePending(ctx, order); err != nil {
		span.RecordError(err)
		log.Printf("❌ Failed to create order: %v", err)
		if errors.Is(err, ErrPendingOrderExists) {
			return "", err
		}
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	log.Printf("✅ Order created: %s", order.ID)
	return order.ID, nil
}

// FindPending returns the user's pending order, or nil when there is none.
func (uc *OrderUseCase) FindPending(ctx context.Context, userID string) (*Order, error) {
	order, err := uc.repository.FindPending(ctx, userID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending order: %w", err)
	}
	return order, nil
}

func (uc *OrderUseCase) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return uc.repository.GetOrder(ctx, orderID)
}

// List returns every order for admins and the user's own orders otherwise.
func (uc *OrderUseCase) List(ctx context.Context, userID string, isAdmin bool) ([]Order, error) {
	if isAdmin {
		userID = ""
	} else if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidOrder)
	}

	orders, err := uc.repository.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (uc *OrderUseCase) SetStatus(ctx context.Context, orderID, status string) error {
	ctx, span := uc.tracer.Start(ctx, "orders.set_status")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID), attribute.String("status", status))

	if !ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	if err := uc.repository.UpdateStatus(ctx, orderID, status); err != nil {
		span.RecordError(err)
		log.Printf("❌ Failed to set status %s on order %s: %v", status, orderID, err)
		return err
	}

	log.Printf("✅ [ORDER STATUS] OrderID: %s -> %s", orderID, status)
	return nil
}

func (uc *OrderUseCase) SetAddress(ctx context.Context, orderID, address string) error {
	if strings.TrimSpace(address) == "" {
		return ErrEmptyAddress
	}
	if err := uc.repository.SetAddress(ctx, orderID, address); err != nil {
		log.Printf("❌ Failed to set address on order %s: %v", orderID, err)
		return err
	}
	return nil
}

// Finalize is the last SAGA action: address attached and order paid.
func (uc *OrderUseCase) Finalize(ctx context.Context, req FinalizeRequest) error {
	log.Printf("➡️ [FINALIZE ORDER] OrderID: %s", req.OrderID)

	if err := uc.repository.Finalize(ctx, req.OrderID, req.Address); err != nil {
		log.Printf("❌ Failed to finalize order: %v", err)
		return err
	}

	log.Printf("✅ Order finalized: %s", req.OrderID)
	return nil
}
