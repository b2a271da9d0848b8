package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubServer answers every request with status and body, and records
// the last request it saw.
func newStubServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request, *map[string]any) {
	t.Helper()
	var last http.Request
	payload := map[string]any{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last = *r
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &last, &payload
}

func TestCartClient_Snapshot(t *testing.T) {
	srv, last, payload := newStubServer(t, http.StatusOK, `{"items":[
		{"product_id": 1, "product_name": "Mug", "product_price": 10.5, "image_url": "", "quantity": 2},
		{"product_id": "sku-2", "product_name": "Tee", "product_price": "5", "quantity": 1}
	]}`)

	items, err := NewCartClient(srv.URL, time.Second).Snapshot(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "/cart", last.URL.Path)
	assert.Equal(t, "user-1", (*payload)["user_id"])
	require.Len(t, items, 2)
	assert.Equal(t, ProductID("1"), items[0].ProductID)
	assert.Equal(t, "10.5", items[0].ProductPrice.String())
	assert.Equal(t, ProductID("sku-2"), items[1].ProductID)

	lines := linesFromCart(items)
	assert.Equal(t, "1", lines[0].ProductID)
	assert.Equal(t, "21", lines[0].Subtotal().String())
}

func TestClients_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  int
		body    string
		call    func(url string) error
		wantErr error
		wantMsg string
	}{
		{
			name:   "insufficient stock",
			status: http.StatusConflict,
			body:   `{"error":"insufficient stock for product 2"}`,
			call: func(url string) error {
				return NewLedgerClient(url, time.Second).Reserve(ctx, "o1", "2", 1)
			},
			wantErr: ErrInsufficientStock,
			wantMsg: "insufficient stock for product 2",
		},
		{
			name:   "unknown product",
			status: http.StatusNotFound,
			body:   `{"error":"product not found: 9"}`,
			call: func(url string) error {
				return NewLedgerClient(url, time.Second).Reserve(ctx, "o1", "9", 1)
			},
			wantErr: ErrNotFound,
		},
		{
			name:   "payment declined",
			status: http.StatusPaymentRequired,
			body:   `{"error":"Payment gateway rejected the transaction"}`,
			call: func(url string) error {
				_, err := NewPaymentsClient(url, time.Second).Charge(ctx, ChargeRequest{OrderID: "o1"})
				return err
			},
			wantErr: ErrPaymentRejected,
			wantMsg: "Payment gateway rejected the transaction",
		},
		{
			name:   "pending order exists",
			status: http.StatusConflict,
			body:   `{"error":"user already has a pending order"}`,
			call: func(url string) error {
				_, err := NewOrderClient(url, time.Second).CreatePending(ctx, "u1", nil)
				return err
			},
			wantErr: ErrPendingOrderExists,
		},
		{
			name:   "invalid transition",
			status: http.StatusConflict,
			body:   `{"error":"invalid status transition: paid -> pending"}`,
			call: func(url string) error {
				return NewOrderClient(url, time.Second).SetStatus(ctx, "o1", "pending")
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":"boom"}`,
			call: func(url string) error {
				return NewCartClient(url, time.Second).Clear(ctx, "u1")
			},
			wantErr: ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newStubServer(t, tt.status, tt.body)

			err := tt.call(srv.URL)

			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestClients_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOrderClient(url, time.Second).FindPending(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestClients_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewCartClient(srv.URL, 20*time.Millisecond).Snapshot(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestOrderClient_FindPending(t *testing.T) {
	srv, last, _ := newStubServer(t, http.StatusOK, `{"has_pending":true,"order":{"id":"o1","user_id":"u1","status":"pending","total_price":"25","order_items":[{"product_id":"1","product_name":"Mug","price":"10","quantity":2}]}}`)

	order, err := NewOrderClient(srv.URL, time.Second).FindPending(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "u1", last.URL.Query().Get("user_id"))
	require.NotNil(t, order)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, "25", order.TotalPrice.String())
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
}

func TestOrderClient_FindPendingNone(t *testing.T) {
	srv, _, _ := newStubServer(t, http.StatusOK, `{"has_pending":false,"order":null}`)

	order, err := NewOrderClient(srv.URL, time.Second).FindPending(context.Background(), "u1")

	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestOrderClient_ListSendsRole(t *testing.T) {
	srv, last, _ := newStubServer(t, http.StatusOK, `[]`)

	orders, err := NewOrderClient(srv.URL, time.Second).List(context.Background(), "admin-1", true)

	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, RoleAdmin, last.URL.Query().Get("role"))
}

func TestPaymentsClient_RevokeUsesReceiptPath(t *testing.T) {
	srv, last, _ := newStubServer(t, http.StatusOK, `{"status":"OK"}`)

	err := NewPaymentsClient(srv.URL, time.Second).Revoke(context.Background(), "r-1")

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.Equal(t, "/receipts/r-1", last.URL.Path)
}

func TestLedgerClient_SendsSingleLine(t *testing.T) {
	srv, last, payload := newStubServer(t, http.StatusOK, `{"items":[]}`)

	err := NewLedgerClient(srv.URL, time.Second).Release(context.Background(), "o1", "1", 2)

	require.NoError(t, err)
	assert.Equal(t, "/restore-stock", last.URL.Path)
	assert.Equal(t, "o1", (*payload)["order_id"])
	items, ok := (*payload)["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"product_id": "1", "quantity": float64(2)}, items[0])
}
