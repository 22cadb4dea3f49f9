package consumer

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/notification"
)

// NotificationConsumer sends a confirmation for every inventory.reserved
// event. It does not deduplicate.
type NotificationConsumer struct {
	store  *notification.Store
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewNotificationConsumer(store *notification.Store, logger *zap.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("notification-consumer"),
		now:    time.Now,
	}
}

func (c *NotificationConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	return consume(ctx, messaging.QueueInventoryReserved, deliveries, c.Handle)
}

func (c *NotificationConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	_, span := startSpan(ctx, c.tracer, d, messaging.QueueInventoryReserved)
	defer span.End()

	event, err := models.DecodeInventoryReserved(d.Body)
	if err != nil {
		c.logger.Error("❌ Malformed inventory.reserved, rejecting",
			zap.ByteString("body", d.Body),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed message")
		nack(c.logger, d, false)
		return
	}
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	n := models.Notification{
		OrderID: event.OrderID,
		Message: notification.ConfirmationMessage(event.Qty, event.Item),
		SentAt:  c.now().UTC(),
	}
	c.store.Add(n)

	c.logger.Info("📧 Notification sent",
		zap.String("order_id", n.OrderID),
		zap.String("message", n.Message),
	)
	ack(c.logger, d)
}
