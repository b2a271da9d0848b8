package main

import (
	"errors"
	"net/http"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/checkout-saga/pkg/telemetry"
)

type PaymentHandler struct {
	useCase *PaymentUseCase
	barrier BarrierRunner
	tracer  trace.Tracer
}

func NewPaymentHandler(useCase *PaymentUseCase, barrier BarrierRunner, tracer trace.Tracer) *PaymentHandler {
	return &PaymentHandler{
		useCase: useCase,
		barrier: barrier,
		tracer:  tracer,
	}
}

func (h *PaymentHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.POST("/charge", h.Charge)
	r.POST("/receipts", h.CreateReceipt)
	r.GET("/receipts/:receipt_id", h.GetReceipt)
	r.DELETE("/receipts/:receipt_id", h.RevokeReceipt)

	// SAGA branch endpoints
	r.POST("/api/payments/receipt", h.ChargeAndIssueBranch)
	r.POST("/api/payments/receipt/compensate", h.RevokeBranch)
}

// Charge answers 402 when the gateway declines.
func (h *PaymentHandler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chargeID, err := h.useCase.Charge(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrPaymentRejected) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"charge_id": chargeID})
}

func (h *PaymentHandler) CreateReceipt(c *gin.Context) {
	var req CreateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "ERROR", "error": err.Error()})
		return
	}

	receiptID, err := h.useCase.IssueReceipt(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidReceipt) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "ERROR", "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "ERROR", "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":     "OK",
		"message":    "Receipt created successfully",
		"receipt_id": receiptID,
	})
}

func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.useCase.GetReceipt(c.Request.Context(), c.Param("receipt_id"))
	if errors.Is(err, ErrReceiptNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// RevokeReceipt answers 200 for unknown receipts too.
func (h *PaymentHandler) RevokeReceipt(c *gin.Context) {
	receiptID := c.Param("receipt_id")
	if err := h.useCase.RevokeReceipt(c.Request.Context(), receiptID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK", "receipt_id": receiptID})
}

// ChargeAndIssueBranch is the SAGA action for the payment step.
func (h *PaymentHandler) ChargeAndIssueBranch(c *gin.Context) {
	var req SagaPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.StartSpanFromPayload(c.Request.Context(), h.tracer, "charge_and_issue_receipt", req.TraceID, req.SpanID)
	defer span.End()
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	receiptID, err := h.useCase.ChargeAndIssueBranch(ctx, h.barrier, c.Request.URL.Query(), req)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrPaymentRejected) || errors.Is(err, ErrInvalidReceipt) {
			c.JSON(http.StatusConflict, gin.H{"dtm_result": dtmcli.ResultFailure, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess, "receipt_id": receiptID})
}

// RevokeBranch is the SAGA compensation for the payment step.
func (h *PaymentHandler) RevokeBranch(c *gin.Context) {
	var req SagaPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.StartSpanFromPayload(c.Request.Context(), h.tracer, "revoke_receipt", req.TraceID, req.SpanID)
	defer span.End()
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	if err := h.useCase.RevokeBranch(ctx, h.barrier, c.Request.URL.Query(), req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dtm_result": dtmcli.ResultSuccess})
}

func (h *PaymentHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "payments-service"})
}
