package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type MockUseCase struct {
	mock.Mock
}

func (m *MockUseCase) CreateOrder(ctx context.Context, creds Credentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

func (m *MockUseCase) ProcessPayment(ctx context.Context, creds Credentials, req ProcessPaymentRequest) error {
	args := m.Called(ctx, creds, req)
	return args.Error(0)
}

func (m *MockUseCase) CheckPending(ctx context.Context, creds Credentials, userID string) (*Order, error) {
	args := m.Called(ctx, creds, userID)
	order, _ := args.Get(0).(*Order)
	return order, args.Error(1)
}

func (m *MockUseCase) ListOrders(ctx context.Context, creds Credentials) ([]Order, error) {
	args := m.Called(ctx, creds)
	orders, _ := args.Get(0).([]Order)
	return orders, args.Error(1)
}

func (m *MockUseCase) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func buyerToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{
		"sub":   buyer.UserID,
		"email": buyer.Email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
}

func newTestRouter(uc CheckoutUseCaseInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewCheckoutHandler(uc, NewJWTAuth(testSecret)).Register(r)
	return r
}

func doJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(new(MockUseCase))

	routes := []struct{ method, path string }{
		{http.MethodPost, "/order/create"},
		{http.MethodGet, "/order/check-pending"},
		{http.MethodGet, "/order/list"},
		{http.MethodPatch, "/order/update/o1"},
		{http.MethodPost, "/payment/process-payment"},
	}
	for _, route := range routes {
		w := doJSON(r, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)

		w = doJSON(r, route.method, route.path, "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}

	w := doJSON(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOrderHandler(t *testing.T) {
	tests := []struct {
		name       string
		orderID    string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"created", "order-1", nil, http.StatusOK, "order-1"},
		{"empty cart", "", ErrEmptyCart, http.StatusBadRequest, "Cart is empty"},
		{"pending exists", "", ErrPendingOrderExists, http.StatusConflict, "pending order"},
		{"upstream down", "", unavailable("cart", errors.New("timeout")), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			uc := new(MockUseCase)
			uc.On("CreateOrder", mock.Anything, buyer).Return(tt.orderID, tt.err)

			// Act
			w := doJSON(newTestRouter(uc), http.MethodPost, "/order/create", buyerToken(t), nil)

			// Assert
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			uc.AssertExpectations(t)
		})
	}
}

func TestProcessPaymentHandler(t *testing.T) {
	req := ProcessPaymentRequest{
		PaymentInfo: PaymentInfo{CardNumber: "4242424242424242", ExpiryDate: "12/30", CVV: "123"},
		ShipInfo:    ShipInfo{"address": "Main St 1"},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"paid", nil, http.StatusOK, "Payment processed successfully check your email for the receipt"},
		{"no pending order", ErrNoPendingOrder, http.StatusBadRequest, "No pending order"},
		{"saga failed", &SagaError{OrderID: "o1", Err: ErrPaymentRejected}, http.StatusBadRequest, "Payment gateway rejected the transaction"},
		{"saga failed upstream", &SagaError{OrderID: "o1", Err: unavailable("payments", errors.New("timeout"))}, http.StatusBadRequest, "payments"},
		{"orders unreachable", unavailable("orders", errors.New("refused")), http.StatusServiceUnavailable, "refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(MockUseCase)
			uc.On("ProcessPayment", mock.Anything, buyer, req).Return(tt.err)

			w := doJSON(newTestRouter(uc), http.MethodPost, "/payment/process-payment", buyerToken(t), req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestProcessPaymentHandler_InvalidBody(t *testing.T) {
	uc := new(MockUseCase)
	r := newTestRouter(uc)

	req := httptest.NewRequest(http.MethodPost, "/payment/process-payment", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+buyerToken(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	uc.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckPendingHandler(t *testing.T) {
	uc := new(MockUseCase)
	order := &Order{ID: "order-1", UserID: buyer.UserID, Status: OrderStatusPending, Items: []OrderLine{{ProductID: "1", Quantity: 1}}}
	uc.On("CheckPending", mock.Anything, buyer, "").Return(order, nil).Once()
	uc.On("CheckPending", mock.Anything, buyer, "").Return(nil, nil).Once()
	r := newTestRouter(uc)

	w := doJSON(r, http.MethodGet, "/order/check-pending", buyerToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		HasPending bool   `json:"has_pending"`
		Order      *Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.HasPending)
	require.NotNil(t, body.Order)
	assert.Len(t, body.Order.Items, 1)

	w = doJSON(r, http.MethodGet, "/order/check-pending", buyerToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"has_pending":false,"order":null}`, w.Body.String())
}

func TestListOrdersHandler_AdminRole(t *testing.T) {
	admin := Credentials{UserID: "admin-1", Email: "admin@example.com", Role: RoleAdmin}
	uc := new(MockUseCase)
	uc.On("ListOrders", mock.Anything, admin).Return([]Order{{ID: "a"}, {ID: "b"}}, nil)

	token := signToken(t, jwt.MapClaims{
		"sub":          admin.UserID,
		"email":        admin.Email,
		"app_metadata": map[string]any{"role": RoleAdmin},
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	w := doJSON(newTestRouter(uc), http.MethodGet, "/order/list", token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var orders []Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Len(t, orders, 2)
	uc.AssertExpectations(t)
}

func TestUpdateOrderStatusHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		err        error
		wantStatus int
	}{
		{"updated", UpdateStatusRequest{Status: "shipped"}, nil, http.StatusOK},
		{"missing status", map[string]string{}, nil, http.StatusBadRequest},
		{"not found", UpdateStatusRequest{Status: "shipped"}, ErrNotFound, http.StatusNotFound},
		{"invalid transition", UpdateStatusRequest{Status: "pending"}, ErrInvalidTransition, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(MockUseCase)
			uc.On("UpdateOrderStatus", mock.Anything, "o1", mock.Anything).Return(tt.err)

			w := doJSON(newTestRouter(uc), http.MethodPatch, "/order/update/o1", buyerToken(t), tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 2)
	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	limiter.Sweep(0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
