package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// newServiceClient builds the resty client used for one collaborator. Every
// call carries the W3C trace headers of the request context.
func newServiceClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			otel.GetTextMapPropagator().Inject(r.Context(), propagation.HeaderCarrier(r.Header))
			return nil
		})
}

type errorBody struct {
	Error string `json:"error"`
}

// remoteError keeps the message a collaborator answered with while still
// matching its sentinel through errors.Is.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string {
	if e.msg == "" {
		return e.kind.Error()
	}
	return e.msg
}

func (e *remoteError) Unwrap() error { return e.kind }

func unavailable(service string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, service, err)
}

// responseError maps a non 2xx answer to a sentinel. conflict is what a 409
// means for the endpoint that was called.
func responseError(service string, resp *resty.Response, conflict error) error {
	var msg string
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		msg = body.Error
	}

	var kind error
	switch code := resp.StatusCode(); {
	case code == http.StatusBadRequest:
		kind = ErrInvalidRequest
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = ErrUnauthorized
	case code == http.StatusPaymentRequired:
		kind = ErrPaymentRejected
	case code == http.StatusNotFound:
		kind = ErrNotFound
	case code == http.StatusConflict && conflict != nil:
		kind = conflict
	case code >= http.StatusInternalServerError:
		kind = ErrUpstreamUnavailable
	default:
		kind = fmt.Errorf("%s answered %d", service, code)
	}
	return &remoteError{kind: kind, msg: msg}
}

type userRequest struct {
	UserID string `json:"user_id"`
}

// CartClient talks to the cart service.
type CartClient struct {
	client *resty.Client
}

func NewCartClient(baseURL string, timeout time.Duration) *CartClient {
	return &CartClient{client: newServiceClient(baseURL, timeout)}
}

func (c *CartClient) Snapshot(ctx context.Context, userID string) ([]CartItem, error) {
	var result struct {
		Items []CartItem `json:"items"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(userRequest{UserID: userID}).
		SetResult(&result).
		SetError(&errorBody{}).
		Post("/cart")
	if err != nil {
		return nil, unavailable("cart", err)
	}
	if resp.IsError() {
		return nil, responseError("cart", resp, nil)
	}
	return result.Items, nil
}

func (c *CartClient) Clear(ctx context.Context, userID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(userRequest{UserID: userID}).
		SetError(&errorBody{}).
		Post("/cart/clear")
	if err != nil {
		return unavailable("cart", err)
	}
	if resp.IsError() {
		return responseError("cart", resp, nil)
	}
	return nil
}

// OrderClient talks to the order service.
type OrderClient struct {
	client *resty.Client
}

func NewOrderClient(baseURL string, timeout time.Duration) *OrderClient {
	return &OrderClient{client: newServiceClient(baseURL, timeout)}
}

func (c *OrderClient) CreatePending(ctx context.Context, userID string, lines []OrderLine) (string, error) {
	var result struct {
		OrderID string `json:"order_id"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"user_id": userID, "items": lines}).
		SetResult(&result).
		SetError(&errorBody{}).
		Post("/orders")
	if err != nil {
		return "", unavailable("orders", err)
	}
	if resp.IsError() {
		return "", responseError("orders", resp, ErrPendingOrderExists)
	}
	return result.OrderID, nil
}

func (c *OrderClient) FindPending(ctx context.Context, userID string) (*Order, error) {
	var result struct {
		HasPending bool   `json:"has_pending"`
		Order      *Order `json:"order"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetResult(&result).
		SetError(&errorBody{}).
		Get("/check-pending")
	if err != nil {
		return nil, unavailable("orders", err)
	}
	if resp.IsError() {
		return nil, responseError("orders", resp, nil)
	}
	if !result.HasPending {
		return nil, nil
	}
	return result.Order, nil
}

func (c *OrderClient) List(ctx context.Context, userID string, isAdmin bool) ([]Order, error) {
	role := RoleUser
	if isAdmin {
		role = RoleAdmin
	}

	var orders []Order
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"user_id": userID, "role": role}).
		SetResult(&orders).
		SetError(&errorBody{}).
		Get("/orderslist")
	if err != nil {
		return nil, unavailable("orders", err)
	}
	if resp.IsError() {
		return nil, responseError("orders", resp, nil)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (c *OrderClient) SetStatus(ctx context.Context, orderID, status string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("order_id", orderID).
		SetBody(UpdateStatusRequest{Status: status}).
		SetError(&errorBody{}).
		Patch("/orders/{order_id}")
	if err != nil {
		return unavailable("orders", err)
	}
	if resp.IsError() {
		return responseError("orders", resp, ErrInvalidTransition)
	}
	return nil
}

func (c *OrderClient) SetAddress(ctx context.Context, orderID, address string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("order_id", orderID).
		SetBody(map[string]string{"address": address}).
		SetError(&errorBody{}).
		Patch("/address/{order_id}")
	if err != nil {
		return unavailable("orders", err)
	}
	if resp.IsError() {
		return responseError("orders", resp, nil)
	}
	return nil
}

type stockItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type stockRequest struct {
	OrderID string      `json:"order_id,omitempty"`
	Items   []stockItem `json:"items"`
}

// LedgerClient talks to the inventory service.
type LedgerClient struct {
	client *resty.Client
}

func NewLedgerClient(baseURL string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{client: newServiceClient(baseURL, timeout)}
}

func (c *LedgerClient) Reserve(ctx context.Context, orderID, productID string, quantity int) error {
	return c.change(ctx, "/reduce-stock", orderID, productID, quantity)
}

func (c *LedgerClient) Release(ctx context.Context, orderID, productID string, quantity int) error {
	return c.change(ctx, "/restore-stock", orderID, productID, quantity)
}

func (c *LedgerClient) change(ctx context.Context, path, orderID, productID string, quantity int) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(stockRequest{
			OrderID: orderID,
			Items:   []stockItem{{ProductID: productID, Quantity: quantity}},
		}).
		SetError(&errorBody{}).
		Post(path)
	if err != nil {
		return unavailable("inventory", err)
	}
	if resp.IsError() {
		return responseError("inventory", resp, ErrInsufficientStock)
	}
	return nil
}

// PaymentsClient talks to the payments service, which is both the payment
// gateway and the receipt store.
type PaymentsClient struct {
	client *resty.Client
}

func NewPaymentsClient(baseURL string, timeout time.Duration) *PaymentsClient {
	return &PaymentsClient{client: newServiceClient(baseURL, timeout)}
}

func (c *PaymentsClient) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	var result struct {
		ChargeID string `json:"charge_id"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&errorBody{}).
		Post("/charge")
	if err != nil {
		return "", unavailable("payments", err)
	}
	if resp.IsError() {
		return "", responseError("payments", resp, nil)
	}
	return result.ChargeID, nil
}

func (c *PaymentsClient) Issue(ctx context.Context, req ReceiptRequest) (string, error) {
	var result struct {
		ReceiptID string `json:"receipt_id"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&errorBody{}).
		Post("/receipts")
	if err != nil {
		return "", unavailable("payments", err)
	}
	if resp.IsError() {
		return "", responseError("payments", resp, nil)
	}
	return result.ReceiptID, nil
}

func (c *PaymentsClient) Revoke(ctx context.Context, receiptID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("receipt_id", receiptID).
		SetError(&errorBody{}).
		Delete("/receipts/{receipt_id}")
	if err != nil {
		return unavailable("payments", err)
	}
	if resp.IsError() {
		return responseError("payments", resp, nil)
	}
	return nil
}
