package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

// Outcome is the terminal decision for one order. Exactly one of Reserved
// and Failed is set.
type Outcome struct {
	Reserved *models.InventoryReservedEvent
	Failed   *models.InventoryFailedEvent
}

// OrderID returns the id of the order the outcome belongs to
func (o Outcome) OrderID() string {
	if o.Reserved != nil {
		return o.Reserved.OrderID
	}
	if o.Failed != nil {
		return o.Failed.OrderID
	}
	return ""
}

// Service owns the stock ledger and the processed-order set. An order must
// be claimed before it is reserved. A reservation is only final once Commit
// is called; until then Rollback undoes it and gives the claim back.
type Service struct {
	ledger    Ledger
	processed ProcessedSet
	logger    *zap.Logger
}

func NewService(ledger Ledger, processed ProcessedSet, logger *zap.Logger) *Service {
	return &Service{
		ledger:    ledger,
		processed: processed,
		logger:    logger,
	}
}

// AlreadyProcessed reports whether orderID reached an outcome before
func (s *Service) AlreadyProcessed(ctx context.Context, orderID string) (bool, error) {
	return s.processed.Seen(ctx, orderID)
}

// Claim takes an order for this worker. Only ClaimAcquired allows Reserve.
func (s *Service) Claim(ctx context.Context, orderID string) (ClaimResult, error) {
	return s.processed.Claim(ctx, orderID)
}

// Abandon gives a claim back without touching stock
func (s *Service) Abandon(ctx context.Context, orderID string) error {
	if err := s.processed.Unclaim(ctx, orderID); err != nil {
		return fmt.Errorf("abandon %s: %w", orderID, err)
	}
	return nil
}

// Reserve decides the outcome for an order. On success the stock is
// already decremented.
func (s *Service) Reserve(ctx context.Context, order models.OrderPlacedEvent) (Outcome, error) {
	r, err := s.ledger.Reserve(ctx, order.Item, order.Qty)
	if err != nil {
		return Outcome{}, err
	}

	if r.OK {
		s.logger.Info("✅ Reserved stock",
			zap.String("order_id", order.OrderID),
			zap.String("item", order.Item),
			zap.Int("qty", order.Qty),
			zap.Int("remaining", r.Remaining),
		)
		return Outcome{Reserved: &models.InventoryReservedEvent{
			OrderID:        order.OrderID,
			Item:           order.Item,
			Qty:            order.Qty,
			RemainingStock: r.Remaining,
		}}, nil
	}

	reason := InsufficientStockReason(order.Item, r.Available, order.Qty)
	s.logger.Warn("⚠️ Reservation failed",
		zap.String("order_id", order.OrderID),
		zap.String("reason", reason),
	)
	return Outcome{Failed: &models.InventoryFailedEvent{
		OrderID: order.OrderID,
		Item:    order.Item,
		Qty:     order.Qty,
		Reason:  reason,
	}}, nil
}

// Commit marks the order processed so redeliveries become no-ops
func (s *Service) Commit(ctx context.Context, outcome Outcome) error {
	return s.processed.Mark(ctx, outcome.OrderID())
}

// Rollback returns the stock taken by an uncommitted reservation and
// releases the claim so a redelivery decides the order again.
func (s *Service) Rollback(ctx context.Context, outcome Outcome) error {
	if outcome.Reserved != nil {
		if err := s.ledger.Release(ctx, outcome.Reserved.Item, outcome.Reserved.Qty); err != nil {
			return fmt.Errorf("rollback %s: %w", outcome.Reserved.OrderID, err)
		}
		s.logger.Warn("↩️ Rolled back reservation",
			zap.String("order_id", outcome.Reserved.OrderID),
			zap.String("item", outcome.Reserved.Item),
			zap.Int("qty", outcome.Reserved.Qty),
		)
	}
	return s.Abandon(ctx, outcome.OrderID())
}

// Stock returns a copy of the current ledger
func (s *Service) Stock(ctx context.Context) (map[string]int, error) {
	return s.ledger.Snapshot(ctx)
}

// InsufficientStockReason is the failure reason sent back for an order the
// ledger cannot cover.
func InsufficientStockReason(item string, have, need int) string {
	return fmt.Sprintf("insufficient stock for %s (have %d, need %d)", item, have, need)
}
