package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestHTTPMetrics_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg, "test")

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Requests.WithLabelValues("/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("unmatched", "404")))
}

func TestStartSpanFromPayload_ContinuesTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	tracer := tp.Tracer("test")

	traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
	spanID := "00f067aa0ba902b7"

	ctx, span := StartSpanFromPayload(context.Background(), tracer, "reserve", traceID, spanID)
	defer span.End()

	gotTrace, gotSpan := TraceIDs(ctx)
	assert.Equal(t, traceID, gotTrace)
	assert.NotEqual(t, spanID, gotSpan)
}

func TestStartSpanFromPayload_InvalidIDsStartNewTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()

	ctx, span := StartSpanFromPayload(context.Background(), tp.Tracer("test"), "reserve", "zz", "yy")
	defer span.End()

	gotTrace, _ := TraceIDs(ctx)
	assert.NotEmpty(t, gotTrace)
}

func TestTraceIDs_NoSpan(t *testing.T) {
	traceID, spanID := TraceIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}
