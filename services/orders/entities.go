package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrPendingOrderExists = errors.New("user already has a pending order")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownStatus      = errors.New("unknown order status")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrEmptyAddress       = errors.New("address is required")
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusShipped   = "shipped"
)

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled, OrderStatusShipped},
	OrderStatusPaid:      {OrderStatusShipped},
	OrderStatusCancelled: {},
	OrderStatusShipped:   {},
}

// ValidStatus reports whether status is a known order status.
func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// CanTransition reports whether an order in status from may move to to.
// Staying in the same status is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return ValidStatus(to)
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns the error a status change from -> to should fail with.
func checkTransition(from, to string) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// OrderLine is a snapshot of one cart line taken when the order was created.
type OrderLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Subtotal is price times quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Items           []OrderLine     `json:"order_items"`
	TotalPrice      decimal.Decimal `json:"total_price" db:"total_price"`
	Status          string          `json:"status" db:"status"`
	ShippingAddress *string         `json:"shipping_address" db:"shipping_address"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// NewOrder builds a pending order and computes its total from the lines.
func NewOrder(id, userID string, lines []OrderLine) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidOrder)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: items are required", ErrInvalidOrder)
	}

	total := decimal.Zero
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity <= 0 || line.Price.IsNegative() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidOrder, i)
		}
		total = total.Add(line.Subtotal())
	}

	now := time.Now()
	return &Order{
		ID:         id,
		UserID:     userID,
		Items:      lines,
		TotalPrice: total,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	UserID string      `json:"user_id" binding:"required"`
	Items  []OrderLine `json:"items" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type UpdateAddressRequest struct {
	Address string `json:"address"`
}

// FinalizeRequest is the payload DTM posts to the finalize branch.
type FinalizeRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	Address string `json:"address"`
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}
