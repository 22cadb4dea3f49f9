package notification

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

// ConfirmationMessage renders the text sent for a reserved order
func ConfirmationMessage(qty int, item string) string {
	return fmt.Sprintf("✅ Your order for %dx %s has been confirmed!", qty, item)
}

// Store is an append-only log of sent notifications, in arrival order
type Store struct {
	mu      sync.RWMutex
	records []models.Notification
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Add(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, n)
}

// List returns a copy of every record
func (s *Store) List() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// ByOrder returns the records for one order. Redeliveries may have produced
// more than one.
func (s *Store) ByOrder(orderID string) []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, n := range s.records {
		if n.OrderID == orderID {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
