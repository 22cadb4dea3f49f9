package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ClaimResult tells the caller whether it may decide an order
type ClaimResult int

const (
	// ClaimAcquired means the caller now owns the order until Mark or Unclaim
	ClaimAcquired ClaimResult = iota
	// ClaimProcessed means the order already reached an outcome
	ClaimProcessed
	// ClaimInFlight means another worker holds the order right now
	ClaimInFlight
)

func (r ClaimResult) String() string {
	switch r {
	case ClaimAcquired:
		return "acquired"
	case ClaimProcessed:
		return "processed"
	case ClaimInFlight:
		return "in-flight"
	default:
		return "unknown"
	}
}

// ProcessedSet remembers which orders already reached a terminal outcome.
// Claim is atomic: of several workers racing on one order id exactly one
// gets ClaimAcquired.
type ProcessedSet interface {
	Claim(ctx context.Context, orderID string) (ClaimResult, error)
	Seen(ctx context.Context, orderID string) (bool, error)
	Mark(ctx context.Context, orderID string) error
	Unclaim(ctx context.Context, orderID string) error
}

// MemoryProcessedSet is bounded both by capacity (least recently marked
// ids are evicted first) and by ttl. It only has to outlive the broker's
// redelivery window.
type MemoryProcessedSet struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, struct{}]
	pending map[string]struct{}
}

// NewMemoryProcessedSet builds the set. capacity <= 0 means unbounded and
// ttl <= 0 means entries never expire.
func NewMemoryProcessedSet(capacity int, ttl time.Duration) *MemoryProcessedSet {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryProcessedSet{
		cache:   expirable.NewLRU[string, struct{}](capacity, nil, ttl),
		pending: make(map[string]struct{}),
	}
}

func (s *MemoryProcessedSet) Claim(_ context.Context, orderID string) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Contains(orderID) {
		return ClaimProcessed, nil
	}
	if _, ok := s.pending[orderID]; ok {
		return ClaimInFlight, nil
	}
	s.pending[orderID] = struct{}{}
	return ClaimAcquired, nil
}

func (s *MemoryProcessedSet) Seen(_ context.Context, orderID string) (bool, error) {
	_, ok := s.cache.Get(orderID)
	return ok, nil
}

func (s *MemoryProcessedSet) Mark(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, orderID)
	s.cache.Add(orderID, struct{}{})
	return nil
}

func (s *MemoryProcessedSet) Unclaim(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, orderID)
	return nil
}

func (s *MemoryProcessedSet) Len() int {
	return s.cache.Len()
}
