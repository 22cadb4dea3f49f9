package consumer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/inventory"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

// OutcomePublisher publishes the reservation outcome of an order
type OutcomePublisher interface {
	PublishInventoryReserved(ctx context.Context, event models.InventoryReservedEvent) error
	PublishInventoryFailed(ctx context.Context, event models.InventoryFailedEvent) error
}

// InventoryConsumer turns order.placed messages into reservation outcomes.
//
// An order is claimed before any stock is taken, so concurrent copies of one
// order are decided once. It is marked processed only after its outcome was
// published. If the publish fails for good the reservation is rolled back,
// the claim released and the message requeued, so a redelivery decides the
// order again from scratch.
type InventoryConsumer struct {
	svc            *inventory.Service
	publisher      OutcomePublisher
	logger         *zap.Logger
	tracer         trace.Tracer
	publishRetries int
	newBackOff     func() backoff.BackOff
}

func NewInventoryConsumer(svc *inventory.Service, publisher OutcomePublisher, logger *zap.Logger, publishRetries int) *InventoryConsumer {
	return &InventoryConsumer{
		svc:            svc,
		publisher:      publisher,
		logger:         logger,
		tracer:         otel.Tracer("inventory-consumer"),
		publishRetries: publishRetries,
		newBackOff:     defaultBackOff,
	}
}

// Run processes order.placed deliveries sequentially
func (c *InventoryConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	return consume(ctx, messaging.QueueOrderPlaced, deliveries, c.Handle)
}

// Handle settles exactly one delivery
func (c *InventoryConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	ctx, span := startSpan(ctx, c.tracer, d, messaging.QueueOrderPlaced)
	defer span.End()

	c.logger.Info("📥 Received order.placed event", zap.Uint64("delivery_tag", d.DeliveryTag))

	order, err := models.DecodeOrderPlaced(d.Body)
	if err != nil {
		c.logger.Error("❌ Malformed order.placed, dead-lettering",
			zap.ByteString("body", d.Body),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed message")
		nack(c.logger, d, false)
		return
	}

	log := c.logger.With(zap.String("order_id", order.OrderID))
	if len(order.IgnoredFields) > 0 {
		log.Warn("⚠️ Ignoring unparseable order.placed fields", zap.Strings("fields", order.IgnoredFields))
	}
	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("order.item", order.Item),
		attribute.Int("order.qty", order.Qty),
	)

	claim, err := c.svc.Claim(ctx, order.OrderID)
	if err != nil {
		log.Warn("⚠️ Could not claim order, requeueing", zap.Error(err))
		span.RecordError(err)
		nack(c.logger, d, true)
		return
	}
	span.SetAttributes(attribute.String("order.claim", claim.String()))
	switch claim {
	case inventory.ClaimProcessed:
		log.Info("🔁 Duplicate order.placed, skipping")
		ack(c.logger, d)
		return
	case inventory.ClaimInFlight:
		// Another instance is deciding this order. Once it commits the
		// redelivered copy is acked as a duplicate.
		log.Info("⏳ Order is being processed elsewhere, requeueing")
		nack(c.logger, d, true)
		return
	}

	outcome, err := c.svc.Reserve(ctx, order)
	if err != nil {
		log.Warn("⚠️ Reservation failed on state store, requeueing", zap.Error(err))
		span.RecordError(err)
		if abErr := c.svc.Abandon(ctx, order.OrderID); abErr != nil {
			log.Error("❌ Failed to release claim", zap.Error(abErr))
		}
		nack(c.logger, d, true)
		return
	}
	span.SetAttributes(attribute.Bool("inventory.reserved", outcome.Reserved != nil))

	if err := c.publishOutcome(ctx, outcome); err != nil {
		log.Error("❌ Failed to publish outcome, rolling back", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "outcome not published")
		if rbErr := c.svc.Rollback(ctx, outcome); rbErr != nil {
			log.Error("❌ Rollback failed", zap.Error(rbErr))
		}
		nack(c.logger, d, true)
		return
	}

	if err := c.svc.Commit(ctx, outcome); err != nil {
		// The outcome is already out; a redelivery would publish it again.
		log.Error("❌ Failed to mark order processed", zap.Error(err))
	}

	ack(c.logger, d)
	span.SetStatus(codes.Ok, "")
	log.Info("✅ Order processed")
}

func (c *InventoryConsumer) publishOutcome(ctx context.Context, outcome inventory.Outcome) error {
	publish := func() error {
		if outcome.Reserved != nil {
			return c.publisher.PublishInventoryReserved(ctx, *outcome.Reserved)
		}
		return c.publisher.PublishInventoryFailed(ctx, *outcome.Failed)
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("⚠️ Publish failed, retrying",
			zap.String("order_id", outcome.OrderID()),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}
	return retry(ctx, c.newBackOff, c.publishRetries, publish, notify)
}
