package inventory

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// DefaultCatalog is the stock every inventory service starts with unless
// INVENTORY_SEED overrides it.
func DefaultCatalog() map[string]int {
	return map[string]int{
		"Pizza":    50,
		"Burger":   50,
		"Sushi":    50,
		"Salad":    50,
		"Taco":     50,
		"Sandwich": 50,
		"Pasta":    50,
		"Coffee":   100,
	}
}

// Reservation is the result of one check-and-decrement against the ledger.
type Reservation struct {
	Item      string
	Requested int
	Available int // stock before the attempt
	Remaining int // stock after the attempt
	OK        bool
}

// Ledger holds remaining stock per item. Reserve must check and decrement
// atomically and never drive stock below zero.
type Ledger interface {
	Reserve(ctx context.Context, item string, qty int) (Reservation, error)
	Release(ctx context.Context, item string, qty int) error
	Snapshot(ctx context.Context) (map[string]int, error)
}

// MemoryLedger is the process-local ledger. Only the consumer goroutine
// mutates it; the lock lets HTTP handlers read snapshots.
type MemoryLedger struct {
	mu    sync.RWMutex
	stock map[string]int
}

func NewMemoryLedger(seed map[string]int) *MemoryLedger {
	stock := maps.Clone(seed)
	if stock == nil {
		stock = make(map[string]int)
	}
	return &MemoryLedger{stock: stock}
}

// Reserve treats unknown items as zero stock
func (l *MemoryLedger) Reserve(_ context.Context, item string, qty int) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.stock[item]
	r := Reservation{Item: item, Requested: qty, Available: available, Remaining: available}
	if available >= qty {
		l.stock[item] = available - qty
		r.Remaining = available - qty
		r.OK = true
	}
	return r, nil
}

// Release returns previously reserved units
func (l *MemoryLedger) Release(_ context.Context, item string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("release of negative quantity %d", qty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[item] += qty
	return nil
}

func (l *MemoryLedger) Snapshot(_ context.Context) (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.stock), nil
}
