package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/checkout-saga/pkg/telemetry"
)

// OrderUseCaseInterface is what the handlers need from the use case.
type OrderUseCaseInterface interface {
	CreatePending(ctx context.Context, req CreateOrderRequest) (string, error)
	FindPending(ctx context.Context, userID string) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	List(ctx context.Context, userID string, isAdmin bool) ([]Order, error)
	SetStatus(ctx context.Context, orderID, status string) error
	SetAddress(ctx context.Context, orderID, address string) error
	Finalize(ctx context.Context, req FinalizeRequest) error
}

type OrderHandler struct {
	useCase OrderUseCaseInterface
	tracer  trace.Tracer
}

func NewOrderHandler(useCase OrderUseCaseInterface, tracer trace.Tracer) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

func (h *OrderHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/:order_id", h.GetOrder)
	r.PATCH("/orders/:order_id", h.UpdateStatus)
	r.PATCH("/address/:order_id", h.UpdateAddress)
	r.GET("/check-pending", h.CheckPending)
	r.GET("/orderslist", h.ListOrders)

	// SAGA branch endpoint
	r.POST("/api/orders/finalize", h.Finalize)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	orderID, err := h.useCase.CreatePending(c.Request.Context(), req)
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id": orderID,
		"message":  "Order created successfully",
	})
}

func (h *OrderHandler) CheckPending(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	order, err := h.useCase.FindPending(c.Request.Context(), userID)
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_pending": order != nil,
		"order":       order,
	})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and role are required"})
		return
	}

	orders, err := h.useCase.List(c.Request.Context(), userID, c.Query("role") == "admin")
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.useCase.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	orderID := c.Param("order_id")
	if err := h.useCase.SetStatus(c.Request.Context(), orderID, req.Status); err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Order updated",
		"order_id": orderID,
		"status":   req.Status,
	})
}

func (h *OrderHandler) UpdateAddress(c *gin.Context) {
	var req UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	orderID := c.Param("order_id")
	if err := h.useCase.SetAddress(c.Request.Context(), orderID, req.Address); err != nil {
		c.JSON(orderErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Address added",
		"order_id": orderID,
	})
}

// Finalize is the SAGA action that closes a checkout.
func (h *OrderHandler) Finalize(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.StartSpanFromPayload(c.Request.Context(), h.tracer, "finalize_order", req.TraceID, req.SpanID)
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.String("trace_id", req.TraceID),
	)

	if err := h.useCase.Finalize(ctx, req); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"dtm_result": dtmcli.ResultFailure, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
}

func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "orders-service",
	})
}

func orderErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPendingOrderExists), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownStatus), errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrEmptyAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
