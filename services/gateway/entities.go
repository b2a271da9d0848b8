package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrEmptyCart           = errors.New("Cart is empty")
	ErrNoPendingOrder      = errors.New("No pending order")
	ErrPendingOrderExists  = errors.New("user already has a pending order")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrPaymentRejected     = errors.New("Payment gateway rejected the transaction")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidRequest      = errors.New("invalid request")
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)

// Credentials identify the caller of one request.
type Credentials struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (c Credentials) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ProductID accepts both JSON numbers and strings. The cart service sends
// numeric catalog ids while the other services use strings.
type ProductID string

func (p *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = ProductID(n.String())
	return nil
}

// CartItem is one line of the cart snapshot.
type CartItem struct {
	ProductID    ProductID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ImageURL     string          `json:"image_url"`
	Quantity     int             `json:"quantity"`
}

// OrderLine is the order's copy of a cart line.
type OrderLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// linesFromCart snapshots the cart. Prices are taken as the cart reports them.
func linesFromCart(items []CartItem) []OrderLine {
	lines := make([]OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderLine{
			ProductID:   string(item.ProductID),
			ProductName: item.ProductName,
			Price:       item.ProductPrice,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []OrderLine     `json:"order_items"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Status          string          `json:"status"`
	ShippingAddress *string         `json:"shipping_address"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PaymentInfo struct {
	CardNumber string `json:"cardNumber"`
	ExpiryDate string `json:"expiryDate"`
	CVV        string `json:"cvv"`
}

// ShipInfo is forwarded to the receipt as sent by the storefront.
type ShipInfo map[string]any

func (s ShipInfo) Address() string {
	address, _ := s["address"].(string)
	return strings.TrimSpace(address)
}

// ProcessPaymentRequest is the body of POST /payment/process-payment.
type ProcessPaymentRequest struct {
	PaymentInfo PaymentInfo `json:"paymentInfo"`
	ShipInfo    ShipInfo    `json:"ship_info"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ChargeRequest struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentInfo PaymentInfo     `json:"payment_info"`
}

type ReceiptRequest struct {
	OrderID      string          `json:"order_id"`
	UserID       string          `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentInfo  PaymentInfo     `json:"payment_info"`
	ShipInfo     ShipInfo        `json:"ship_info"`
	ReceiptItems []OrderLine     `json:"receipt_items"`
	UserEmail    string          `json:"user_email"`
	ChargeID     string          `json:"charge_id,omitempty"`
}

// Checkout is everything a saga run needs.
type Checkout struct {
	Credentials Credentials
	Order       *Order
	PaymentInfo PaymentInfo
	ShipInfo    ShipInfo
}

func (c Checkout) receiptRequest(chargeID string) ReceiptRequest {
	return ReceiptRequest{
		OrderID:      c.Order.ID,
		UserID:       c.Credentials.UserID,
		Amount:       c.Order.TotalPrice,
		PaymentInfo:  c.PaymentInfo,
		ShipInfo:     c.ShipInfo,
		ReceiptItems: c.Order.Items,
		UserEmail:    c.Credentials.Email,
		ChargeID:     chargeID,
	}
}

// SagaError is returned when a checkout started and then failed. Its message
// is the one of the step that failed.
type SagaError struct {
	OrderID string
	Err     error
}

func (e *SagaError) Error() string { return e.Err.Error() }

func (e *SagaError) Unwrap() error { return e.Err }
