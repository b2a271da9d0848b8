package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/checkout-saga/pkg/telemetry"
)

// InventoryHandler exposes the ledger over HTTP.
type InventoryHandler struct {
	useCase *InventoryUseCase
	barrier BarrierRunner
	tracer  trace.Tracer
}

func NewInventoryHandler(useCase *InventoryUseCase, barrier BarrierRunner, tracer trace.Tracer) *InventoryHandler {
	return &InventoryHandler{
		useCase: useCase,
		barrier: barrier,
		tracer:  tracer,
	}
}

func (h *InventoryHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/stock/:product_id", h.GetStock)
	r.POST("/reduce-stock", h.ReduceStock)
	r.POST("/restore-stock", h.RestoreStock)

	// SAGA branch endpoints
	r.POST("/api/inventory/reserve", h.ReserveBranch)
	r.POST("/api/inventory/compensate", h.CompensateBranch)
}

// ReduceStock answers 404 for an unknown product and 409 when stock is short.
func (h *InventoryHandler) ReduceStock(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	levels, err := h.useCase.ReduceStock(c.Request.Context(), req.OrderID, req.Items)
	if err != nil {
		c.JSON(stockErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stock reduced successfully", "items": levels})
}

// RestoreStock is the compensation endpoint; unknown products are skipped.
func (h *InventoryHandler) RestoreStock(c *gin.Context) {
	var req StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	levels, err := h.useCase.RestoreStock(c.Request.Context(), req.OrderID, req.Items)
	if err != nil {
		c.JSON(stockErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stock restored successfully", "items": levels})
}

func (h *InventoryHandler) GetStock(c *gin.Context) {
	level, err := h.useCase.GetStock(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		c.JSON(stockErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, level)
}

// ReserveBranch is the SAGA action endpoint used when the gateway runs on DTM.
func (h *InventoryHandler) ReserveBranch(c *gin.Context) {
	var req SagaActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.StartSpanFromPayload(c.Request.Context(), h.tracer, "reserve_inventory", req.TraceID, req.SpanID)
	defer span.End()
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	err := h.useCase.ReserveBranch(ctx, h.barrier, c.Request.URL.Query(), req)
	if err != nil {
		span.RecordError(err)
		log.Printf("ℹ️ [RESERVE BRANCH] FAILED for OrderID=%s : %s", req.OrderID, err)

		// 409 tells DTM the branch failed for good and the saga must roll back.
		if isBusinessFailure(err) {
			c.JSON(http.StatusConflict, gin.H{"dtm_result": dtmcli.ResultFailure, "error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve stock"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
}

// CompensateBranch is the SAGA compensation endpoint.
func (h *InventoryHandler) CompensateBranch(c *gin.Context) {
	var req SagaActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.StartSpanFromPayload(c.Request.Context(), h.tracer, "compensate_inventory", req.TraceID, req.SpanID)
	defer span.End()
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	if err := h.useCase.CompensateBranch(ctx, h.barrier, c.Request.URL.Query(), req); err != nil {
		span.RecordError(err)
		log.Printf("ℹ️ [COMPENSATE BRANCH] FAILED for OrderID=%s : %s", req.OrderID, err)
		// DTM keeps retrying compensations until they succeed.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compensate stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
}

func (h *InventoryHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "inventory-service"})
}

func stockErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isBusinessFailure(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrInvalidItem)
}
