package messaging

import amqp "github.com/rabbitmq/amqp091-go"

const (
	Exchange     = "orders_exchange"
	ExchangeKind = "topic"
)

// Routing keys
const (
	RoutingKeyOrderPlaced       = "order.placed"
	RoutingKeyInventoryReserved = "inventory.reserved"
	RoutingKeyInventoryFailed   = "inventory.failed"
)

// Queue names
const (
	QueueOrderPlaced       = "order_placed"
	QueueOrderPlacedDLQ    = "order_placed_dlq"
	QueueInventoryReserved = "inventory_reserved"
	QueueCallbackReserved  = "order_callback_reserved"
	QueueCallbackFailed    = "order_callback_failed"
)

// QueueSpec describes a durable queue and its binding to Exchange.
// An empty RoutingKey leaves the queue unbound.
type QueueSpec struct {
	Name       string
	RoutingKey string
	Args       amqp.Table
}

// InventoryQueues are the queues consumed by the inventory service. Rejected
// messages are dead-lettered through the default exchange into the DLQ.
func InventoryQueues() []QueueSpec {
	return []QueueSpec{
		{
			Name:       QueueOrderPlaced,
			RoutingKey: RoutingKeyOrderPlaced,
			Args: amqp.Table{
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": QueueOrderPlacedDLQ,
			},
		},
		{Name: QueueOrderPlacedDLQ},
	}
}

// NotificationQueues are the queues consumed by the notification service
func NotificationQueues() []QueueSpec {
	return []QueueSpec{
		{Name: QueueInventoryReserved, RoutingKey: RoutingKeyInventoryReserved},
	}
}

// CallbackQueues are the status reconciliation listener's private copies of
// the inventory outcomes.
func CallbackQueues() []QueueSpec {
	return []QueueSpec{
		{Name: QueueCallbackReserved, RoutingKey: RoutingKeyInventoryReserved},
		{Name: QueueCallbackFailed, RoutingKey: RoutingKeyInventoryFailed},
	}
}

// Topology is every queue of the pipeline. Each service declares all of it
// so that no event is published before its queues exist.
func Topology() []QueueSpec {
	var specs []QueueSpec
	specs = append(specs, InventoryQueues()...)
	specs = append(specs, NotificationQueues()...)
	specs = append(specs, CallbackQueues()...)
	return specs
}
