package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestRouter(repo *memRepository, rejectRate float64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewPaymentHandler(newTestUseCase(repo, rejectRate, nil), memBarrier(repo), tracenoop.NewTracerProvider().Tracer("test"))
	r := gin.New()
	handler.Register(r)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChargeHandler(t *testing.T) {
	req := ChargeRequest{
		OrderID:     "order-1",
		UserID:      "user-1",
		Amount:      sampleReceiptRequest().Amount,
		PaymentInfo: sampleReceiptRequest().PaymentInfo,
	}

	w := doJSON(newTestRouter(newMemRepository(), 0), http.MethodPost, "/charge", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "charge_id")

	w = doJSON(newTestRouter(newMemRepository(), 1), http.MethodPost, "/charge", req)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "Payment gateway rejected the transaction")
}

func TestReceiptHandlers(t *testing.T) {
	// Arrange
	repo := newMemRepository()
	r := newTestRouter(repo, 0)

	// Act
	w := doJSON(r, http.MethodPost, "/receipts", sampleReceiptRequest())

	// Assert
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ReceiptID string `json:"receipt_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ReceiptID)

	w = doJSON(r, http.MethodGet, "/receipts/"+created.ReceiptID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "4242424242424242")

	w = doJSON(r, http.MethodDelete, "/receipts/"+created.ReceiptID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodDelete, "/receipts/"+created.ReceiptID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/receipts/"+created.ReceiptID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateReceiptHandler_MissingData(t *testing.T) {
	req := sampleReceiptRequest()
	req.OrderID = ""

	w := doJSON(newTestRouter(newMemRepository(), 0), http.MethodPost, "/receipts", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentBranchHandlers(t *testing.T) {
	repo := newMemRepository()
	req := SagaPaymentRequest{CreateReceiptRequest: sampleReceiptRequest()}

	w := doJSON(newTestRouter(repo, 0), http.MethodPost, "/api/payments/receipt?gid=g1&op=action", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, repo.Count())

	w = doJSON(newTestRouter(repo, 0), http.MethodPost, "/api/payments/receipt/compensate?gid=g1&op=compensate", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, repo.Count())

	w = doJSON(newTestRouter(repo, 1), http.MethodPost, "/api/payments/receipt?gid=g2&op=action", req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "FAILURE")
}
