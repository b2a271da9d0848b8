package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/matheusmosca/checkout-saga/pkg/config"
	"github.com/matheusmosca/checkout-saga/pkg/telemetry"
)

func main() {
	cfg := config.New("gateway", map[string]any{
		"CART_SERVICE_URL":      "http://cart-service:8080",
		"ORDER_SERVICE_URL":     "http://orders-service:8080",
		"INVENTORY_SERVICE_URL": "http://inventory-service:8080",
		"PAYMENT_SERVICE_URL":   "http://payments-service:8080",
		"JWT_SECRET":            "",
		"REDIS_ADDR":            "",
		"LOCK_TTL":              30 * time.Second,
		"SAGA_ENGINE":           "local",
		"RATE_RPS":              20.0,
		"RATE_BURST":            40,
	})
	ctx := context.Background()
	serviceName := cfg.String("SERVICE_NAME")

	tp, err := telemetry.InitTracer(ctx, serviceName, cfg.String("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	mp, err := telemetry.InitMetrics(ctx, serviceName, cfg.String("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter: %v", err)
		}
	}()

	secret := cfg.String("JWT_SECRET")
	if secret == "" {
		log.Fatalf("JWT_SECRET is required")
	}

	timeout := cfg.Duration("REQUEST_TIMEOUT")
	orders := NewOrderClient(cfg.URL("ORDER_SERVICE_URL"), timeout)
	payments := NewPaymentsClient(cfg.URL("PAYMENT_SERVICE_URL"), timeout)

	var lock UserLock = noopLock{}
	if addr := cfg.String("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		lock = NewRedisLock(rdb, cfg.Duration("LOCK_TTL"))
		log.Printf("ℹ️ Per-user checkout lock on redis %s", addr)
	}

	tracer := tp.Tracer(serviceName)
	metrics := NewSagaMetrics(mp.Meter(serviceName))

	engineName := cfg.String("SAGA_ENGINE")
	var engine SagaEngine
	switch engineName {
	case "dtm":
		engine = NewDTMSaga(
			cfg.String("DTM_SERVER"),
			cfg.URL("INVENTORY_SERVICE_URL"),
			cfg.URL("PAYMENT_SERVICE_URL"),
			cfg.URL("ORDER_SERVICE_URL"),
			tracer,
		)
	case "local":
		engine = NewLocalSaga(orders, NewLedgerClient(cfg.URL("INVENTORY_SERVICE_URL"), timeout), payments, payments, tracer, metrics)
	default:
		log.Fatalf("Unknown SAGA_ENGINE %q", engineName)
	}
	log.Printf("ℹ️ Saga engine: %s", engineName)

	useCase := NewCheckoutUseCase(
		NewCartClient(cfg.URL("CART_SERVICE_URL"), timeout),
		orders,
		lock,
		engine,
		engineName,
		tracer,
		metrics,
	)
	handler := NewCheckoutHandler(useCase, NewJWTAuth(secret))

	limiter := NewRateLimiter(cfg.Float("RATE_RPS"), cfg.Int("RATE_BURST"))
	go limiter.Run(ctx, 5*time.Minute, 30*time.Minute)

	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(telemetry.NewHTTPMetrics(prometheus.DefaultRegisterer, "gateway").Middleware())
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))
	r.Use(limiter.Middleware())
	handler.Register(r)

	port := cfg.String("PORT")
	log.Printf("🚀 Gateway listening on port %s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
