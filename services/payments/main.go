package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/matheusmosca/checkout-saga/pkg/config"
	"github.com/matheusmosca/checkout-saga/pkg/postgres"
	"github.com/matheusmosca/checkout-saga/pkg/telemetry"
)

func main() {
	cfg := config.New("payments-service", map[string]any{
		"DATABASE_NAME":       "payments_db",
		"PAYMENT_REJECT_RATE": 0.0,
		"PAYMENT_SEED":        0,
		"KAFKA_BROKERS":       "",
		"RECEIPT_TOPIC":       "receipts",
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

	dbOpts := postgres.Options{
		User:     cfg.String("DATABASE_USER"),
		Password: cfg.String("DATABASE_PASSWORD"),
		Host:     cfg.String("DATABASE_HOST"),
		Port:     cfg.String("DATABASE_PORT"),
		Name:     cfg.String("DATABASE_NAME"),
	}

	dbPool, err := postgres.Connect(ctx, dbOpts)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbPool.Close()

	barrierDB, err := postgres.OpenSQL(dbOpts)
	if err != nil {
		log.Fatalf("Failed to open barrier database: %v", err)
	}
	defer barrierDB.Close()

	var publisher Publisher = noopPublisher{}
	if brokers := cfg.List("KAFKA_BROKERS"); len(brokers) > 0 {
		publisher = NewKafkaPublisher(brokers, cfg.String("RECEIPT_TOPIC"))
		log.Printf("ℹ️ Publishing receipt events to %v", brokers)
	}
	defer publisher.Close()

	rejectRate := cfg.Float("PAYMENT_REJECT_RATE")
	log.Printf("ℹ️ Payment gateway reject rate: %.2f", rejectRate)

	tracer := tp.Tracer(serviceName)
	useCase := NewPaymentUseCase(
		NewReceiptRepository(dbPool),
		NewCharger(rejectRate, int64(cfg.Int("PAYMENT_SEED"))),
		publisher,
		tracer,
		mp.Meter(serviceName),
	)
	handler := NewPaymentHandler(useCase, NewDTMBarrier(barrierDB), tracer)

	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(telemetry.NewHTTPMetrics(prometheus.DefaultRegisterer, "payments").Middleware())
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))
	handler.Register(r)

	port := cfg.String("PORT")
	log.Printf("🚀 Payments Service listening on port %s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
