package main

import "context"

// CartProvider reads and clears the cart of a user.
type CartProvider interface {
	Snapshot(ctx context.Context, userID string) ([]CartItem, error)
	Clear(ctx context.Context, userID string) error
}

// OrderStore is the order service as seen by the gateway.
// FindPending returns nil and no error when the user has no pending order.
type OrderStore interface {
	CreatePending(ctx context.Context, userID string, lines []OrderLine) (string, error)
	FindPending(ctx context.Context, userID string) (*Order, error)
	List(ctx context.Context, userID string, isAdmin bool) ([]Order, error)
	SetStatus(ctx context.Context, orderID, status string) error
	SetAddress(ctx context.Context, orderID, address string) error
}

// Ledger reserves and releases stock one product at a time.
type Ledger interface {
	Reserve(ctx context.Context, orderID, productID string, quantity int) error
	Release(ctx context.Context, orderID, productID string, quantity int) error
}

// PaymentGateway charges the buyer. Declines wrap ErrPaymentRejected.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

// ReceiptService issues and revokes receipts. Revoke succeeds for unknown ids.
type ReceiptService interface {
	Issue(ctx context.Context, req ReceiptRequest) (string, error)
	Revoke(ctx context.Context, receiptID string) error
}

// AuthProvider turns an Authorization header into credentials.
type AuthProvider interface {
	Resolve(ctx context.Context, authorization string) (Credentials, error)
}

// UserLock serializes order creation per user.
type UserLock interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// SagaEngine runs the payment part of a checkout for a pending order.
type SagaEngine interface {
	Execute(ctx context.Context, checkout Checkout) error
}
