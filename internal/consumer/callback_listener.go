package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/client"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

// StatusUpdater writes an order's status back to the order store
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID, status string) error
}

var _ StatusUpdater = (*client.OrderClient)(nil)

// CallbackListener applies inventory outcomes to order records. Updates are
// best-effort: a failed update is logged and the message acknowledged.
type CallbackListener struct {
	updater    StatusUpdater
	logger     *zap.Logger
	tracer     trace.Tracer
	retries    int
	newBackOff func() backoff.BackOff
}

// NewCallbackListener builds the listener. retries > 0 retries a failed
// update with exponential backoff before giving up.
func NewCallbackListener(updater StatusUpdater, logger *zap.Logger, retries int) *CallbackListener {
	return &CallbackListener{
		updater:    updater,
		logger:     logger,
		tracer:     otel.Tracer("callback-listener"),
		retries:    retries,
		newBackOff: defaultBackOff,
	}
}

// Run handles both outcome queues in one loop, one message at a time
func (l *CallbackListener) Run(ctx context.Context, reserved, failed <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-reserved:
			if !ok {
				return fmt.Errorf("%w: %s", ErrDeliveriesClosed, messaging.QueueCallbackReserved)
			}
			l.HandleReserved(ctx, d)
		case d, ok := <-failed:
			if !ok {
				return fmt.Errorf("%w: %s", ErrDeliveriesClosed, messaging.QueueCallbackFailed)
			}
			l.HandleFailed(ctx, d)
		}
	}
}

func (l *CallbackListener) HandleReserved(ctx context.Context, d amqp.Delivery) {
	ctx, span := startSpan(ctx, l.tracer, d, messaging.QueueCallbackReserved)
	defer span.End()

	event, err := models.DecodeInventoryReserved(d.Body)
	if err != nil {
		l.reject(span, d, err)
		return
	}
	l.apply(ctx, span, d, event.OrderID, models.StatusReserved)
}

func (l *CallbackListener) HandleFailed(ctx context.Context, d amqp.Delivery) {
	ctx, span := startSpan(ctx, l.tracer, d, messaging.QueueCallbackFailed)
	defer span.End()

	event, err := models.DecodeInventoryFailed(d.Body)
	if err != nil {
		l.reject(span, d, err)
		return
	}
	l.apply(ctx, span, d, event.OrderID, models.FailedStatus(event.Reason))
}

func (l *CallbackListener) reject(span trace.Span, d amqp.Delivery, err error) {
	l.logger.Error("❌ Malformed callback, dropping",
		zap.String("routing_key", d.RoutingKey),
		zap.ByteString("body", d.Body),
		zap.Error(err),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, "malformed message")
	nack(l.logger, d, false)
}

func (l *CallbackListener) apply(ctx context.Context, span trace.Span, d amqp.Delivery, orderID, status string) {
	log := l.logger.With(zap.String("order_id", orderID), zap.String("status", status))
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", status),
	)

	update := func() error {
		err := l.updater.UpdateStatus(ctx, orderID, status)
		if errors.Is(err, client.ErrOrderNotFound) || errors.Is(err, client.ErrStatusConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn("⚠️ Status update failed, retrying", zap.Duration("retry_in", next), zap.Error(err))
	}

	if err := retry(ctx, l.newBackOff, l.retries, update, notify); err != nil {
		log.Warn("⚠️ Could not update order status", zap.Error(err))
		span.RecordError(err)
	} else {
		log.Info("🔄 Order status updated")
	}

	ack(l.logger, d)
}
