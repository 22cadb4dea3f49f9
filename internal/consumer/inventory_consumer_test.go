package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/inventory"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

type mockOutcomePublisher struct {
	mu       sync.Mutex
	reserved []models.InventoryReservedEvent
	failed   []models.InventoryFailedEvent
	attempts int
	failN    int // number of leading attempts that fail; -1 fails forever
}

func (m *mockOutcomePublisher) attempt() error {
	m.attempts++
	if m.failN < 0 || m.attempts <= m.failN {
		return errors.New("broker unavailable")
	}
	return nil
}

func (m *mockOutcomePublisher) PublishInventoryReserved(_ context.Context, event models.InventoryReservedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.attempt(); err != nil {
		return err
	}
	m.reserved = append(m.reserved, event)
	return nil
}

func (m *mockOutcomePublisher) PublishInventoryFailed(_ context.Context, event models.InventoryFailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.attempt(); err != nil {
		return err
	}
	m.failed = append(m.failed, event)
	return nil
}

func newTestInventoryConsumer(pub *mockOutcomePublisher, retries int) (*InventoryConsumer, *inventory.Service) {
	svc := inventory.NewService(
		inventory.NewMemoryLedger(inventory.DefaultCatalog()),
		inventory.NewMemoryProcessedSet(0, 0),
		zap.NewNop(),
	)
	c := NewInventoryConsumer(svc, pub, zap.NewNop(), retries)
	c.newBackOff = noWait
	return c, svc
}

func orderBody(id, item string, qty int) string {
	return fmt.Sprintf(`{"order_id":%q,"item":%q,"qty":%d,"student_id":"S1","status":"PLACED"}`, id, item, qty)
}

func stockOf(t *testing.T, svc *inventory.Service, item string) int {
	t.Helper()
	stock, err := svc.Stock(context.Background())
	require.NoError(t, err)
	return stock[item]
}

func TestInventoryConsumer_ReservesPizza(t *testing.T) {
	pub := &mockOutcomePublisher{}
	c, svc := newTestInventoryConsumer(pub, 3)
	acks := newFakeAcknowledger()

	c.Handle(context.Background(), delivery(acks, 1, orderBody("ORD-1", "Pizza", 1)))

	assert.Equal(t, settledAck, acks.result(1))
	require.Len(t, pub.reserved, 1)
	assert.Equal(t, "ORD-1", pub.reserved[0].OrderID)
	assert.Equal(t, 49, pub.reserved[0].RemainingStock)
	assert.Equal(t, 49, stockOf(t, svc, "Pizza"))

	done, _ := svc.AlreadyProcessed(context.Background(), "ORD-1")
	assert.True(t, done)
}

func TestInventoryConsumer_DuplicateDecrementsOnce(t *testing.T) {
	pub := &mockOutcomePublisher{}
	c, svc := newTestInventoryConsumer(pub, 3)
	acks := newFakeAcknowledger()

	for tag := uint64(1); tag <= 3; tag++ {
		c.Handle(context.Background(), delivery(acks, tag, orderBody("ORD-dup", "Burger", 5)))
		assert.Equal(t, settledAck, acks.result(tag))
	}

	assert.Len(t, pub.reserved, 1)
	assert.Equal(t, 45, stockOf(t, svc, "Burger"))
}

func TestInventoryConsumer_InsufficientStock(t *testing.T) {
	pub := &mockOutcomePublisher{}
	c, svc := newTestInventoryConsumer(pub, 3)
	acks := newFakeAcknowledger()

	c.Handle(context.Background(), delivery(acks, 1, orderBody("ORD-2", "Coffee", 1000)))

	assert.Equal(t, settledAck, acks.result(1))
	assert.Empty(t, pub.reserved)
	require.Len(t, pub.failed, 1)
	assert.Equal(t, "insufficient stock for Coffee (have 100, need 1000)", pub.failed[0].Reason)
	assert.Equal(t, 100, stockOf(t, svc, "Coffee"))
}

func TestInventoryConsumer_MalformedIsDeadLettered(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"missing order_id", `{"item":"Pizza","qty":1}`},
		{"missing item", `{"order_id":"ORD-3","qty":1}`},
		{"zero qty", `{"order_id":"ORD-3","item":"Pizza","qty":0}`},
		{"string qty", `{"order_id":"ORD-3","item":"Pizza","qty":"one"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockOutcomePublisher{}
			c, svc := newTestInventoryConsumer(pub, 3)
			acks := newFakeAcknowledger()

			c.Handle(context.Background(), delivery(acks, 7, tt.body))

			assert.Equal(t, settledDrop, acks.result(7))
			assert.Zero(t, pub.attempts)
			assert.Equal(t, 50, stockOf(t, svc, "Pizza"))
		})
	}
}

func TestInventoryConsumer_PublishFailureRollsBackAndRequeues(t *testing.T) {
	pub := &mockOutcomePublisher{failN: -1}
	c, svc := newTestInventoryConsumer(pub, 2)
	acks := newFakeAcknowledger()

	c.Handle(context.Background(), delivery(acks, 1, orderBody("ORD-4", "Sushi", 10)))

	assert.Equal(t, settledRequeue, acks.result(1))
	assert.Equal(t, 3, pub.attempts)
	assert.Equal(t, 50, stockOf(t, svc, "Sushi"))
	done, _ := svc.AlreadyProcessed(context.Background(), "ORD-4")
	assert.False(t, done)

	// broker recovers, redelivery decides the order again
	pub.failN = 0
	c.Handle(context.Background(), delivery(acks, 2, orderBody("ORD-4", "Sushi", 10)))

	assert.Equal(t, settledAck, acks.result(2))
	require.Len(t, pub.reserved, 1)
	assert.Equal(t, 40, pub.reserved[0].RemainingStock)
	assert.Equal(t, 40, stockOf(t, svc, "Sushi"))
}

func TestInventoryConsumer_TransientPublishFailureIsRetried(t *testing.T) {
	pub := &mockOutcomePublisher{failN: 2}
	c, svc := newTestInventoryConsumer(pub, 3)
	acks := newFakeAcknowledger()

	c.Handle(context.Background(), delivery(acks, 1, orderBody("ORD-5", "Taco", 1)))

	assert.Equal(t, settledAck, acks.result(1))
	assert.Equal(t, 3, pub.attempts)
	assert.Len(t, pub.reserved, 1)
	assert.Equal(t, 49, stockOf(t, svc, "Taco"))
}

func TestInventoryConsumer_StateStoreUnavailableRequeues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ledger, err := inventory.NewRedisLedger(context.Background(), client, inventory.DefaultCatalog())
	require.NoError(t, err)
	svc := inventory.NewService(ledger, inventory.NewRedisProcessedSet(client, 0, 0), zap.NewNop())

	pub := &mockOutcomePublisher{}
	c := NewInventoryConsumer(svc, pub, zap.NewNop(), 0)
	c.newBackOff = noWait
	acks := newFakeAcknowledger()

	mr.Close()
	c.Handle(context.Background(), delivery(acks, 1, orderBody("ORD-6", "Pizza", 1)))

	assert.Equal(t, settledRequeue, acks.result(1))
	assert.Zero(t, pub.attempts)
}

func newRedisInventoryConsumer(t *testing.T, client *redis.Client, pub *mockOutcomePublisher) (*InventoryConsumer, *inventory.Service) {
	t.Helper()
	ledger, err := inventory.NewRedisLedger(context.Background(), client, inventory.DefaultCatalog())
	require.NoError(t, err)
	svc := inventory.NewService(ledger, inventory.NewRedisProcessedSet(client, time.Hour, time.Minute), zap.NewNop())
	c := NewInventoryConsumer(svc, pub, zap.NewNop(), 0)
	c.newBackOff = noWait
	return c, svc
}

func TestInventoryConsumer_SharedRedisDecidesOrderOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pubA, pubB := &mockOutcomePublisher{}, &mockOutcomePublisher{}
	a, svc := newRedisInventoryConsumer(t, client, pubA)
	b, _ := newRedisInventoryConsumer(t, client, pubB)
	acksA, acksB := newFakeAcknowledger(), newFakeAcknowledger()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Handle(context.Background(), delivery(acksA, 1, orderBody("ORD-7", "Pizza", 5)))
	}()
	go func() {
		defer wg.Done()
		b.Handle(context.Background(), delivery(acksB, 1, orderBody("ORD-7", "Pizza", 5)))
	}()
	wg.Wait()

	assert.Equal(t, 45, stockOf(t, svc, "Pizza"))
	assert.Equal(t, 1, len(pubA.reserved)+len(pubB.reserved))

	// a copy that lost the race is requeued and acked once redelivered
	for _, acks := range []*fakeAcknowledger{acksA, acksB} {
		if acks.result(1) == settledRequeue {
			a.Handle(context.Background(), delivery(acks, 2, orderBody("ORD-7", "Pizza", 5)))
			assert.Equal(t, settledAck, acks.result(2))
		}
	}
	assert.Equal(t, 45, stockOf(t, svc, "Pizza"))
	assert.Equal(t, 1, len(pubA.reserved)+len(pubB.reserved))
}

func TestInventoryConsumer_InFlightOrderIsRequeued(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	other := inventory.NewRedisProcessedSet(client, time.Hour, time.Minute)
	claim, err := other.Claim(context.Background(), "ORD-8")
	require.NoError(t, err)
	require.Equal(t, inventory.ClaimAcquired, claim)

	pub := &mockOutcomePublisher{}
	c, svc := newRedisInventoryConsumer(t, client, pub)
	acks := newFakeAcknowledger()

	c.Handle(context.Background(), delivery(acks, 1, orderBody("ORD-8", "Burger", 2)))
	assert.Equal(t, settledRequeue, acks.result(1))
	assert.Zero(t, pub.attempts)
	assert.Equal(t, 50, stockOf(t, svc, "Burger"))

	// the holder crashed; its claim expires and the order is decided here
	mr.FastForward(2 * time.Minute)
	c.Handle(context.Background(), delivery(acks, 2, orderBody("ORD-8", "Burger", 2)))
	assert.Equal(t, settledAck, acks.result(2))
	assert.Equal(t, 48, stockOf(t, svc, "Burger"))
}

func TestInventoryConsumer_RunDrainsBacklog(t *testing.T) {
	pub := &mockOutcomePublisher{}
	c, svc := newTestInventoryConsumer(pub, 0)
	acks := newFakeAcknowledger()

	backlog := make(chan amqp.Delivery, 10)
	for i := 1; i <= 10; i++ {
		backlog <- delivery(acks, uint64(i), orderBody(fmt.Sprintf("ORD-%d", i), "Salad", 6))
	}
	close(backlog)

	err := c.Run(context.Background(), backlog)
	assert.ErrorIs(t, err, ErrDeliveriesClosed)

	assert.Equal(t, 10, acks.count())
	// 8 orders of 6 fit into 50, the last two fail
	assert.Len(t, pub.reserved, 8)
	assert.Len(t, pub.failed, 2)
	assert.Equal(t, 2, stockOf(t, svc, "Salad"))
}

func TestInventoryConsumer_RunStopsOnCancel(t *testing.T) {
	c, _ := newTestInventoryConsumer(&mockOutcomePublisher{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, c.Run(ctx, make(chan amqp.Delivery)))
}
