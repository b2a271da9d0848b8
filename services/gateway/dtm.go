package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dtm-labs/client/dtmcli"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/checkout-saga/pkg/telemetry"
)

// The payloads below mirror what the branch services bind. Trace ids travel
// in the body because DTM does not forward W3C headers to branches.

type inventoryBranchRequest struct {
	OrderID string      `json:"order_id"`
	Items   []stockItem `json:"items"`
	TraceID string      `json:"trace_id,omitempty"`
	SpanID  string      `json:"span_id,omitempty"`
}

type paymentBranchRequest struct {
	ReceiptRequest
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

type finalizeBranchRequest struct {
	OrderID string `json:"order_id"`
	Address string `json:"address"`
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// DTMSaga submits the checkout to a DTM server and waits for the outcome.
// DTM drives the compensations.
type DTMSaga struct {
	server       string
	inventoryURL string
	paymentsURL  string
	ordersURL    string
	tracer       trace.Tracer
}

func NewDTMSaga(server, inventoryURL, paymentsURL, ordersURL string, tracer trace.Tracer) *DTMSaga {
	return &DTMSaga{
		server:       server,
		inventoryURL: inventoryURL,
		paymentsURL:  paymentsURL,
		ordersURL:    ordersURL,
		tracer:       tracer,
	}
}

func (d *DTMSaga) Execute(ctx context.Context, checkout Checkout) error {
	order := checkout.Order

	gid, err := d.newGid()
	if err != nil {
		return err
	}

	ctx, span := d.tracer.Start(ctx, "dtm.saga")
	defer span.End()
	span.SetAttributes(
		attribute.String("dtm.gid", gid),
		attribute.String("order_id", order.ID),
		attribute.String("component", "dtm-coordinator"),
	)

	traceID, spanID := telemetry.TraceIDs(ctx)
	log.Printf("🚀 Starting SAGA | TraceID: %s | GID: %s | OrderID: %s", traceID, gid, order.ID)

	items := make([]stockItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, stockItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	saga := dtmcli.NewSaga(d.server, gid).
		Add(
			d.inventoryURL+"/api/inventory/reserve",
			d.inventoryURL+"/api/inventory/compensate",
			&inventoryBranchRequest{OrderID: order.ID, Items: items, TraceID: traceID, SpanID: spanID},
		).
		Add(
			d.paymentsURL+"/api/payments/receipt",
			d.paymentsURL+"/api/payments/receipt/compensate",
			&paymentBranchRequest{ReceiptRequest: checkout.receiptRequest(""), TraceID: traceID, SpanID: spanID},
		).
		Add(
			d.ordersURL+"/api/orders/finalize",
			"",
			&finalizeBranchRequest{OrderID: order.ID, Address: checkout.ShipInfo.Address(), TraceID: traceID, SpanID: spanID},
		)
	saga.WaitResult = true

	if err := saga.Submit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("❌ SAGA failed | GID: %s | OrderID: %s | Error: %v", gid, order.ID, err)
		return fmt.Errorf("checkout %s was rolled back: %w", gid, err)
	}

	log.Printf("✅ SAGA finished | GID: %s | OrderID: %s", gid, order.ID)
	return nil
}

// newGid asks the DTM server for a global transaction id. dtmcli panics when
// the server cannot be reached.
func (d *DTMSaga) newGid() (gid string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = unavailable("dtm", fmt.Errorf("%v", r))
		}
	}()
	return dtmcli.MustGenGid(d.server), nil
}
