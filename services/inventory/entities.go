package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidItem       = errors.New("invalid item format")
)

// ProductInventory is the stock counter of one product.
type ProductInventory struct {
	ID           string    `json:"id" db:"id"`
	CurrentStock int       `json:"current_stock" db:"current_stock"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// InventoryMovement is the audit row written by every stock change.
type InventoryMovement struct {
	ID             string    `json:"id" db:"id"`
	InventoryID    string    `json:"inventory_id" db:"inventory_id"`
	OrderID        string    `json:"order_id" db:"order_id"`
	ChangeQuantity int       `json:"change_quantity" db:"change_quantity"`
	MovementType   string    `json:"movement_type" db:"movement_type"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const (
	MovementTypeDecreased = "decreased"
	MovementTypeIncreased = "increased"
)

// StockItem is one line of a reduce/restore request.
type StockItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockChangeRequest is the body of /reduce-stock and /restore-stock.
type StockChangeRequest struct {
	OrderID string      `json:"order_id,omitempty"`
	Items   []StockItem `json:"items"`
}

// StockLevel reports the stock of a product after a change.
type StockLevel struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

// mergeItems validates items and folds lines of the same product together,
// sorted by product id so row locks are always taken in the same order.
func mergeItems(items []StockItem) ([]StockItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items are required", ErrInvalidItem)
	}

	totals := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || item.Quantity <= 0 {
			return nil, ErrInvalidItem
		}
		totals[id] += item.Quantity
	}

	merged := make([]StockItem, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, StockItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })

	return merged, nil
}
