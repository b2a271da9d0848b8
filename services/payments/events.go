package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher sends receipt events to whoever mails the customer.
type Publisher interface {
	Publish(ctx context.Context, event ReceiptEvent) error
	Close() error
}

// KafkaPublisher writes receipt events keyed by order id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,

			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ReceiptEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   data,
		Time:    event.OccurredAt,
		Headers: injectKafkaHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}}),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// injectKafkaHeaders carries the trace context to consumers.
func injectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// noopPublisher is used when no brokers are configured.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ReceiptEvent) error { return nil }
func (noopPublisher) Close() error                                { return nil }
