package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

type published struct {
	routingKey string
	body       []byte
	messageID  string
}

type mockBroker struct {
	messages []published
	err      error
}

func (m *mockBroker) Publish(_ context.Context, routingKey string, body []byte, messageID string, _ amqp.Table) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, published{routingKey: routingKey, body: body, messageID: messageID})
	return nil
}

func TestPublishOrderPlaced_CarriesFullOrder(t *testing.T) {
	broker := &mockBroker{}
	pub := NewEventPublisher(broker)

	order := &models.Order{
		OrderID:   "ORD-1",
		Item:      "Pizza",
		Qty:       2,
		StudentID: "S100",
		Status:    models.StatusPlaced,
		CreatedAt: time.Now(),
	}
	require.NoError(t, pub.PublishOrderPlaced(context.Background(), order))

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	assert.Equal(t, "order.placed", msg.routingKey)
	assert.Equal(t, "ORD-1", msg.messageID)

	event, err := models.DecodeOrderPlaced(msg.body)
	require.NoError(t, err)
	assert.Equal(t, "Pizza", event.Item)
	assert.Equal(t, 2, event.Qty)
	assert.Equal(t, "S100", event.StudentID)
}

func TestPublishInventoryOutcomes_RoutingKeys(t *testing.T) {
	broker := &mockBroker{}
	pub := NewEventPublisher(broker)
	ctx := context.Background()

	require.NoError(t, pub.PublishInventoryReserved(ctx, models.InventoryReservedEvent{OrderID: "ORD-1", Item: "Pizza", Qty: 1, RemainingStock: 49}))
	require.NoError(t, pub.PublishInventoryFailed(ctx, models.InventoryFailedEvent{OrderID: "ORD-2", Item: "Coffee", Qty: 1000, Reason: "nope"}))

	require.Len(t, broker.messages, 2)
	assert.Equal(t, "inventory.reserved", broker.messages[0].routingKey)
	assert.Equal(t, "inventory.failed", broker.messages[1].routingKey)

	var body map[string]any
	require.NoError(t, json.Unmarshal(broker.messages[0].body, &body))
	assert.EqualValues(t, 49, body["remaining_stock"])
}

func TestPublish_WrapsBrokerError(t *testing.T) {
	brokerErr := errors.New("channel closed")
	pub := NewEventPublisher(&mockBroker{err: brokerErr})

	err := pub.PublishInventoryFailed(context.Background(), models.InventoryFailedEvent{OrderID: "ORD-9"})
	assert.ErrorIs(t, err, brokerErr)
	assert.Contains(t, err.Error(), "ORD-9")
}
