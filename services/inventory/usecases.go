package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InventoryUseCase holds the ledger rules: stock never goes negative and
// concurrent changes to one product serialize on its row lock.
type InventoryUseCase struct {
	repository InventoryRepository
	tracer     trace.Tracer
	movements  metric.Int64Counter
}

func NewInventoryUseCase(repository InventoryRepository, tracer trace.Tracer, meter metric.Meter) *InventoryUseCase {
	movements, err := meter.Int64Counter("inventory.stock.movements",
		metric.WithDescription("Units moved by reserve and release operations."))
	if err != nil {
		log.Printf("⚠️ failed to create movements counter: %v", err)
	}

	return &InventoryUseCase{
		repository: repository,
		tracer:     tracer,
		movements:  movements,
	}
}

// ReduceStock reserves every item in one transaction. Either all lines are
// decremented or none is.
func (uc *InventoryUseCase) ReduceStock(ctx context.Context, orderID string, items []StockItem) ([]StockLevel, error) {
	ctx, span := uc.tracer.Start(ctx, "inventory.reduce_stock")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID), attribute.Int("items", len(items)))

	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	log.Printf("➡️ [REDUCE STOCK] OrderID=%s | Products=%d", orderID, len(merged))

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	levels, err := uc.reserve(ctx, tx, orderID, merged)
	if err != nil {
		span.RecordError(err)
		log.Printf("❌ REDUCE FAILED | OrderID=%s | Error=%v", orderID, err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reduce: %w", err)
	}

	uc.count(ctx, merged, MovementTypeDecreased)
	log.Printf("✅ [REDUCE STOCK] Success: OrderID=%s", orderID)
	return levels, nil
}

// Reserve decrements one product and returns its new stock level.
func (uc *InventoryUseCase) Reserve(ctx context.Context, productID string, quantity int) (int, error) {
	levels, err := uc.ReduceStock(ctx, "", []StockItem{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return 0, err
	}
	return levels[0].Stock, nil
}

// RestoreStock increments every item. Unknown products are skipped so a
// rollback never fails because a product was deleted in the meantime.
func (uc *InventoryUseCase) RestoreStock(ctx context.Context, orderID string, items []StockItem) ([]StockLevel, error) {
	ctx, span := uc.tracer.Start(ctx, "inventory.restore_stock")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID), attribute.Int("items", len(items)))

	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	log.Printf("↩️ [RESTORE STOCK] OrderID=%s | Products=%d", orderID, len(merged))

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	levels, err := uc.release(ctx, tx, orderID, merged)
	if err != nil {
		span.RecordError(err)
		log.Printf("❌ RESTORE FAILED | OrderID=%s | Error=%v", orderID, err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}

	uc.count(ctx, merged, MovementTypeIncreased)
	log.Printf("✅ [RESTORE STOCK] Success: OrderID=%s", orderID)
	return levels, nil
}

// Release increments one product; an unknown product is a no-op.
func (uc *InventoryUseCase) Release(ctx context.Context, productID string, quantity int) error {
	_, err := uc.RestoreStock(ctx, "", []StockItem{{ProductID: productID, Quantity: quantity}})
	return err
}

// GetStock returns the current stock of a product.
func (uc *InventoryUseCase) GetStock(ctx context.Context, productID string) (StockLevel, error) {
	product, err := uc.repository.GetProductInventory(ctx, productID)
	if err != nil {
		return StockLevel{}, err
	}
	return StockLevel{ProductID: product.ID, Stock: product.CurrentStock}, nil
}

// reserve runs inside an open transaction. Items must come from mergeItems.
func (uc *InventoryUseCase) reserve(ctx context.Context, tx StockTx, orderID string, items []StockItem) ([]StockLevel, error) {
	levels := make([]StockLevel, 0, len(items))
	for _, item := range items {
		product, err := tx.GetProductForUpdate(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}

		if product.CurrentStock < item.Quantity {
			return nil, fmt.Errorf("%w for product %s", ErrInsufficientStock, item.ProductID)
		}

		stock, err := tx.DecreaseStock(ctx, item.ProductID, orderID, item.Quantity)
		if err != nil {
			return nil, err
		}
		levels = append(levels, StockLevel{ProductID: item.ProductID, Stock: stock})
	}
	return levels, nil
}

func (uc *InventoryUseCase) release(ctx context.Context, tx StockTx, orderID string, items []StockItem) ([]StockLevel, error) {
	levels := make([]StockLevel, 0, len(items))
	for _, item := range items {
		_, err := tx.GetProductForUpdate(ctx, item.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			log.Printf("ℹ️ [RESTORE STOCK] Skipping unknown product %s", item.ProductID)
			continue
		}
		if err != nil {
			return nil, err
		}

		stock, err := tx.IncreaseStock(ctx, item.ProductID, orderID, item.Quantity)
		if err != nil {
			return nil, err
		}
		levels = append(levels, StockLevel{ProductID: item.ProductID, Stock: stock})
	}
	return levels, nil
}

func (uc *InventoryUseCase) count(ctx context.Context, items []StockItem, movementType string) {
	if uc.movements == nil {
		return
	}
	for _, item := range items {
		uc.movements.Add(ctx, int64(item.Quantity), metric.WithAttributes(
			attribute.String("movement_type", movementType),
		))
	}
}
