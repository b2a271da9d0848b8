package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type CheckoutUseCaseInterface interface {
	CreateOrder(ctx context.Context, creds Credentials) (string, error)
	ProcessPayment(ctx context.Context, creds Credentials, req ProcessPaymentRequest) error
	CheckPending(ctx context.Context, creds Credentials, userID string) (*Order, error)
	ListOrders(ctx context.Context, creds Credentials) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
}

type CheckoutHandler struct {
	useCase CheckoutUseCaseInterface
	auth    AuthProvider
}

func NewCheckoutHandler(useCase CheckoutUseCaseInterface, auth AuthProvider) *CheckoutHandler {
	return &CheckoutHandler{
		useCase: useCase,
		auth:    auth,
	}
}

func (h *CheckoutHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("", RequireAuth(h.auth))
	api.POST("/order/create", h.CreateOrder)
	api.GET("/order/check-pending", h.CheckPending)
	api.GET("/order/list", h.ListOrders)
	api.PATCH("/order/update/:order_id", h.UpdateOrderStatus)
	api.POST("/payment/process-payment", h.ProcessPayment)
}

func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	orderID, err := h.useCase.CreateOrder(c.Request.Context(), credentialsFrom(c))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Order created successfully",
		"order_id": orderID,
	})
}

// ProcessPayment answers 400 with the failing step's message once the saga
// has started.
func (h *CheckoutHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	err := h.useCase.ProcessPayment(c.Request.Context(), credentialsFrom(c), req)
	if err != nil {
		var sagaErr *SagaError
		if errors.As(err, &sagaErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment processed successfully check your email for the receipt"})
}

func (h *CheckoutHandler) CheckPending(c *gin.Context) {
	order, err := h.useCase.CheckPending(c.Request.Context(), credentialsFrom(c), c.Query("user_id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_pending": order != nil,
		"order":       order,
	})
}

func (h *CheckoutHandler) ListOrders(c *gin.Context) {
	orders, err := h.useCase.ListOrders(c.Request.Context(), credentialsFrom(c))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *CheckoutHandler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status is required"})
		return
	}

	orderID := c.Param("order_id")
	if err := h.useCase.UpdateOrderStatus(c.Request.Context(), orderID, req.Status); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Order updated",
		"order_id": orderID,
		"status":   req.Status,
	})
}

func (h *CheckoutHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "gateway"})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrNoPendingOrder),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPendingOrderExists),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
