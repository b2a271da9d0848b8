package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentRejected = errors.New("Payment gateway rejected the transaction")
	ErrInvalidCard     = errors.New("invalid card data")
	ErrInvalidReceipt  = errors.New("missing required data: order_id, user_id, amount, receipt_items")
	ErrReceiptNotFound = errors.New("receipt not found")
)

// PaymentInfo is the card data the storefront sends.
type PaymentInfo struct {
	CardNumber string `json:"cardNumber"`
	ExpiryDate string `json:"expiryDate"`
	CVV        string `json:"cvv"`
}

// Validate checks the card data is complete and the number passes Luhn.
func (p PaymentInfo) Validate() error {
	number := digitsOnly(p.CardNumber)
	if len(number) < 12 || len(number) > 19 {
		return fmt.Errorf("%w: card number", ErrInvalidCard)
	}
	if !luhnValid(number) {
		return fmt.Errorf("%w: card number checksum", ErrInvalidCard)
	}
	if strings.TrimSpace(p.ExpiryDate) == "" {
		return fmt.Errorf("%w: expiry date", ErrInvalidCard)
	}
	if cvv := strings.TrimSpace(p.CVV); len(cvv) < 3 || len(cvv) > 4 || digitsOnly(cvv) != cvv {
		return fmt.Errorf("%w: cvv", ErrInvalidCard)
	}
	return nil
}

// Last4 returns the last four digits of the card number.
func (p PaymentInfo) Last4() string {
	number := digitsOnly(p.CardNumber)
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

type ReceiptItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Receipt is the proof of a paid order. The card number is kept masked.
type Receipt struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Amount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	CardLast4  string          `json:"card_last4" db:"card_last4"`
	ExpiryDate string          `json:"expiry_date" db:"expiry_date"`
	ShipInfo   json.RawMessage `json:"ship_info" db:"ship_info"`
	UserEmail  string          `json:"user_email" db:"user_email"`
	ChargeID   string          `json:"charge_id" db:"charge_id"`
	Items      []ReceiptItem   `json:"receipt_items"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// CreateReceiptRequest is the body of POST /receipts.
type CreateReceiptRequest struct {
	OrderID      string          `json:"order_id"`
	UserID       string          `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentInfo  PaymentInfo     `json:"payment_info"`
	ShipInfo     json.RawMessage `json:"ship_info"`
	ReceiptItems []ReceiptItem   `json:"receipt_items"`
	UserEmail    string          `json:"user_email"`
	ChargeID     string          `json:"charge_id"`
}

// NewReceipt validates req and builds the receipt to store.
func NewReceipt(id string, req CreateReceiptRequest) (*Receipt, error) {
	if req.OrderID == "" || req.UserID == "" || !req.Amount.IsPositive() || len(req.ReceiptItems) == 0 {
		return nil, ErrInvalidReceipt
	}

	shipInfo := req.ShipInfo
	if len(shipInfo) == 0 || string(shipInfo) == "null" {
		shipInfo = json.RawMessage(`{}`)
	}

	return &Receipt{
		ID:         id,
		OrderID:    req.OrderID,
		UserID:     req.UserID,
		Amount:     req.Amount,
		CardLast4:  req.PaymentInfo.Last4(),
		ExpiryDate: req.PaymentInfo.ExpiryDate,
		ShipInfo:   shipInfo,
		UserEmail:  req.UserEmail,
		ChargeID:   req.ChargeID,
		Items:      req.ReceiptItems,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// ChargeRequest is the body of POST /charge.
type ChargeRequest struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentInfo PaymentInfo     `json:"payment_info"`
}

// SagaPaymentRequest is the payload DTM posts to the payment branches.
type SagaPaymentRequest struct {
	CreateReceiptRequest
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

const (
	EventReceiptIssued  = "receipt.issued"
	EventReceiptRevoked = "receipt.revoked"
)

// ReceiptEvent is published after a receipt is stored or revoked.
type ReceiptEvent struct {
	Type       string          `json:"type"`
	ReceiptID  string          `json:"receipt_id"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	UserEmail  string          `json:"user_email,omitempty"`
	Amount     decimal.Decimal `json:"total_amount"`
	Items      []ReceiptItem   `json:"receipt_items,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func newReceiptEvent(eventType string, r *Receipt) ReceiptEvent {
	return ReceiptEvent{
		Type:       eventType,
		ReceiptID:  r.ID,
		OrderID:    r.OrderID,
		UserID:     r.UserID,
		UserEmail:  r.UserEmail,
		Amount:     r.Amount,
		Items:      r.Items,
		OccurredAt: time.Now().UTC(),
	}
}
