package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SagaMetrics counts checkout outcomes and compensation runs.
type SagaMetrics struct {
	outcomes      metric.Int64Counter
	compensations metric.Int64Counter
}

func NewSagaMetrics(meter metric.Meter) *SagaMetrics {
	outcomes, err := meter.Int64Counter("checkout.saga.outcomes",
		metric.WithDescription("Checkout sagas by engine and outcome."))
	if err != nil {
		log.Printf("⚠️ failed to create outcomes counter: %v", err)
	}
	compensations, err := meter.Int64Counter("checkout.saga.compensations",
		metric.WithDescription("Compensation steps by step and result."))
	if err != nil {
		log.Printf("⚠️ failed to create compensations counter: %v", err)
	}
	return &SagaMetrics{outcomes: outcomes, compensations: compensations}
}

func (m *SagaMetrics) Outcome(ctx context.Context, engine, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("outcome", outcome),
	))
}

func (m *SagaMetrics) Compensation(ctx context.Context, step string, err error) {
	if m == nil || m.compensations == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.compensations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("result", result),
	))
}
