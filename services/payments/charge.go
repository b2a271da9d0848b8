package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Charger simulates the external payment gateway. A charge is declined when
// the card data is invalid or, with probability rejectRate, at random.
type Charger struct {
	rejectRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCharger(rejectRate float64, seed int64) *Charger {
	if rejectRate < 0 {
		rejectRate = 0
	}
	if rejectRate > 1 {
		rejectRate = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Charger{rejectRate: rejectRate, rng: rand.New(rand.NewSource(seed))}
}

// Charge returns the id of an accepted charge.
func (c *Charger) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := req.PaymentInfo.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPaymentRejected, err)
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", ErrPaymentRejected)
	}
	if c.roll() < c.rejectRate {
		return "", ErrPaymentRejected
	}
	return "ch_" + uuid.New().String(), nil
}

func (c *Charger) roll() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}
