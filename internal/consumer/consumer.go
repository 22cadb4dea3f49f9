package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/observability"
)

// ErrDeliveriesClosed is returned by Run when the broker closes a delivery
// channel. The process is expected to exit and be restarted.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// consume feeds deliveries to handle one at a time until ctx is cancelled or
// the channel closes.
func consume(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handle func(context.Context, amqp.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: %s", ErrDeliveriesClosed, queue)
			}
			handle(ctx, d)
		}
	}
}

// startSpan continues the producer's trace for one delivery
func startSpan(ctx context.Context, tracer trace.Tracer, d amqp.Delivery, queue string) (context.Context, trace.Span) {
	ctx = observability.ExtractContext(ctx, d.Headers)
	ctx, span := tracer.Start(ctx, queue+" process", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", queue),
		attribute.String("messaging.message.id", d.MessageId),
	)
	return ctx, span
}

func ack(logger *zap.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		logger.Error("❌ Failed to ack message", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
	}
}

// nack rejects d. Without requeue the broker dead-letters or drops it.
func nack(logger *zap.Logger, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Error("❌ Failed to nack message",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
	}
}

// defaultBackOff is the retry schedule for publishes and status updates
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// retry runs op at most retries+1 times
func retry(ctx context.Context, newBackOff func() backoff.BackOff, retries int, op backoff.Operation, notify backoff.Notify) error {
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(retries)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
