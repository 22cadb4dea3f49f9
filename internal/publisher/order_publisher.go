package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/observability"
)

// Broker is the part of messaging.RabbitMQ the publisher needs
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte, messageID string, headers amqp.Table) error
}

var _ Broker = (*messaging.RabbitMQ)(nil)

// EventPublisher serializes pipeline events and hands them to the broker
type EventPublisher struct {
	mq Broker
}

func NewEventPublisher(mq Broker) *EventPublisher {
	return &EventPublisher{mq: mq}
}

// PublishOrderPlaced publishes an order.placed event
func (p *EventPublisher) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, messaging.RoutingKeyOrderPlaced, order.OrderID, models.NewOrderPlacedEvent(order))
}

// PublishInventoryReserved publishes an inventory.reserved event
func (p *EventPublisher) PublishInventoryReserved(ctx context.Context, event models.InventoryReservedEvent) error {
	return p.publish(ctx, messaging.RoutingKeyInventoryReserved, event.OrderID, event)
}

// PublishInventoryFailed publishes an inventory.failed event
func (p *EventPublisher) PublishInventoryFailed(ctx context.Context, event models.InventoryFailedEvent) error {
	return p.publish(ctx, messaging.RoutingKeyInventoryFailed, event.OrderID, event)
}

func (p *EventPublisher) publish(ctx context.Context, routingKey, orderID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.mq.Publish(ctx, routingKey, data, orderID, observability.InjectHeaders(ctx)); err != nil {
		return fmt.Errorf("publish %s for %s: %w", routingKey, orderID, err)
	}
	return nil
}
