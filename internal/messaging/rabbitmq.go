package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrPublishNacked is returned when the broker refuses a confirmed publish
var ErrPublishNacked = errors.New("broker nacked publish")

type Options struct {
	URL             string
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// RabbitMQ owns one long-lived connection and channel for the process. The
// channel runs in confirm mode so Publish only succeeds once the broker has
// taken responsibility for the message.
type RabbitMQ struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQ dials the broker, retrying with a fixed delay so services
// tolerate starting before RabbitMQ is ready.
func NewRabbitMQ(opts Options, logger *zap.Logger) (*RabbitMQ, error) {
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = 1
	}

	r := &RabbitMQ{opts: opts, logger: logger}

	attempt := 0
	dial := func() error {
		attempt++
		return r.dial()
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("⚠️ RabbitMQ not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", opts.ConnectAttempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.ConnectDelay), uint64(opts.ConnectAttempts-1))
	if err := backoff.RetryNotify(dial, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempt, err)
	}

	logger.Info("✅ Connected to RabbitMQ")
	return r, nil
}

// dial opens a fresh connection and confirm-mode channel. Callers hold mu or
// own r exclusively.
func (r *RabbitMQ) dial() error {
	conn, err := amqp.Dial(r.opts.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	r.conn = conn
	r.channel = channel
	return nil
}

// currentChannel returns the open channel, re-dialling once if the broker
// closed it since the last call.
func (r *RabbitMQ) currentChannel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil && !r.channel.IsClosed() {
		return r.channel, nil
	}

	r.logger.Warn("⚠️ RabbitMQ channel closed, reconnecting")
	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}
	if err := r.dial(); err != nil {
		return nil, err
	}
	r.logger.Info("✅ Reconnected to RabbitMQ")
	return r.channel, nil
}

// DeclareExchange creates the durable topic exchange if it doesn't exist
func (r *RabbitMQ) DeclareExchange() error {
	ch, err := r.currentChannel()
	if err != nil {
		return err
	}

	err = ch.ExchangeDeclare(
		Exchange,     // name
		ExchangeKind, // kind
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.logger.Info("✅ Exchange declared", zap.String("exchange", Exchange))
	return nil
}

// DeclareQueues creates durable queues and binds them to the exchange
func (r *RabbitMQ) DeclareQueues(specs ...QueueSpec) error {
	ch, err := r.currentChannel()
	if err != nil {
		return err
	}

	for _, spec := range specs {
		_, err := ch.QueueDeclare(
			spec.Name, // queue name
			true,      // durable
			false,     // auto-delete
			false,     // exclusive
			false,     // no-wait
			spec.Args, // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", spec.Name, err)
		}

		if spec.RoutingKey != "" {
			if err := ch.QueueBind(spec.Name, spec.RoutingKey, Exchange, false, nil); err != nil {
				return fmt.Errorf("failed to bind queue %s to %s: %w", spec.Name, spec.RoutingKey, err)
			}
		}

		r.logger.Info("✅ Queue declared",
			zap.String("queue", spec.Name),
			zap.String("routing_key", spec.RoutingKey),
		)
	}
	return nil
}

// DeclareTopology declares the exchange and every queue of the pipeline
func (r *RabbitMQ) DeclareTopology() error {
	if err := r.DeclareExchange(); err != nil {
		return err
	}
	return r.DeclareQueues(Topology()...)
}

// SetPrefetch caps the number of unacknowledged deliveries per consumer
func (r *RabbitMQ) SetPrefetch(count int) error {
	ch, err := r.currentChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(count, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	return nil
}

// Publish sends a persistent JSON message to the exchange and waits for the
// broker's confirm.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte, messageID string, headers amqp.Table) error {
	ch, err := r.currentChannel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		Exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to confirm publish: %w", err)
		}
		if !acked {
			return fmt.Errorf("%w: %s", ErrPublishNacked, routingKey)
		}
	}

	r.logger.Debug("📤 Message published",
		zap.String("routing_key", routingKey),
		zap.String("message_id", messageID),
	)
	return nil
}

// Consume receives messages from a queue with manual acknowledgement
func (r *RabbitMQ) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := r.currentChannel()
	if err != nil {
		return nil, err
	}

	messages, err := ch.Consume(
		queue,       // queue name
		consumerTag, // consumer tag
		false,       // auto-ack (false = manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.logger.Info("👂 Listening on queue", zap.String("queue", queue))
	return messages, nil
}

// QueueDepth returns the number of ready messages in a queue. A passive
// declare of a missing queue closes its channel, so a throwaway channel is
// used.
func (r *RabbitMQ) QueueDepth(queue string) (int, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return 0, amqp.ErrClosed
	}

	ch, err := conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open inspection channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue %s: %w", queue, err)
	}
	return q.Messages, nil
}

// Close closes the connection
func (r *RabbitMQ) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
