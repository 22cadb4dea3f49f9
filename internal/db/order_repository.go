package db

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/ids"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order already has a terminal status")
	ErrInvalidStatus  = errors.New("invalid status")
)

// OrderRepository keeps orders in process memory, in creation order.
// Orders are never deleted.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	seq    []string

	newID func() string
	now   func() time.Time
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*models.Order),
		newID:  ids.NewOrderID,
		now:    time.Now,
	}
}

// Create stores a new PLACED order and returns it
func (r *OrderRepository) Create(item string, qty int, studentID string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for attempts := 1; r.orders[id] != nil; attempts++ {
		if attempts >= 10 {
			return models.Order{}, fmt.Errorf("failed to allocate a unique order id")
		}
		id = r.newID()
	}

	order := &models.Order{
		OrderID:   id,
		Item:      item,
		Qty:       qty,
		StudentID: studentID,
		Status:    models.StatusPlaced,
		CreatedAt: r.now().UTC(),
	}
	r.orders[id] = order
	r.seq = append(r.seq, id)
	return *order, nil
}

// GetAll returns all orders, oldest first
func (r *OrderRepository) GetAll() []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := make([]models.Order, 0, len(r.seq))
	for _, id := range r.seq {
		orders = append(orders, *r.orders[id])
	}
	return orders
}

// GetByID returns a single order
func (r *OrderRepository) GetByID(id string) (models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return *order, nil
}

// UpdateStatus moves an order to status. Once an order is RESERVED or FAILED
// repeating the same status is a no-op and any other status is a conflict.
func (r *OrderRepository) UpdateStatus(id, status string) (models.Order, error) {
	if !models.ValidStatus(status) {
		return models.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	if models.IsTerminal(order.Status) && order.Status != status {
		return *order, fmt.Errorf("%w: %s is %s", ErrStatusConflict, id, order.Status)
	}

	order.Status = status
	return *order, nil
}

func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seq)
}
