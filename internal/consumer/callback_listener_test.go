package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/client"
)

type statusCall struct {
	orderID string
	status  string
}

type mockStatusUpdater struct {
	mu    sync.Mutex
	calls []statusCall
	errs  []error // returned in order, nil once exhausted
}

func (m *mockStatusUpdater) UpdateStatus(_ context.Context, orderID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, statusCall{orderID: orderID, status: status})
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func newTestListener(updater StatusUpdater, retries int) *CallbackListener {
	l := NewCallbackListener(updater, zap.NewNop(), retries)
	l.newBackOff = noWait
	return l
}

func TestCallbackListener_ReservedSetsStatus(t *testing.T) {
	updater := &mockStatusUpdater{}
	l := newTestListener(updater, 0)
	acks := newFakeAcknowledger()

	l.HandleReserved(context.Background(), delivery(acks, 1, `{"order_id":"ORD-1","item":"Pizza","qty":1,"remaining_stock":49}`))

	assert.Equal(t, settledAck, acks.result(1))
	require.Len(t, updater.calls, 1)
	assert.Equal(t, statusCall{"ORD-1", "RESERVED"}, updater.calls[0])
}

func TestCallbackListener_FailedCarriesReason(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "with reason",
			body: `{"order_id":"ORD-2","item":"Coffee","qty":1000,"reason":"insufficient stock for Coffee (have 100, need 1000)"}`,
			want: "FAILED:insufficient stock for Coffee (have 100, need 1000)",
		},
		{
			name: "without reason",
			body: `{"order_id":"ORD-2"}`,
			want: "FAILED:unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &mockStatusUpdater{}
			l := newTestListener(updater, 0)
			acks := newFakeAcknowledger()

			l.HandleFailed(context.Background(), delivery(acks, 1, tt.body))

			assert.Equal(t, settledAck, acks.result(1))
			require.Len(t, updater.calls, 1)
			assert.Equal(t, tt.want, updater.calls[0].status)
		})
	}
}

func TestCallbackListener_BestEffortAcksOnFailure(t *testing.T) {
	updater := &mockStatusUpdater{errs: []error{errors.New("connection refused")}}
	l := newTestListener(updater, 0)
	acks := newFakeAcknowledger()

	l.HandleReserved(context.Background(), delivery(acks, 1, `{"order_id":"ORD-3"}`))

	assert.Equal(t, settledAck, acks.result(1))
	assert.Len(t, updater.calls, 1)
}

func TestCallbackListener_RetriesWhenConfigured(t *testing.T) {
	updater := &mockStatusUpdater{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	l := newTestListener(updater, 3)
	acks := newFakeAcknowledger()

	l.HandleReserved(context.Background(), delivery(acks, 1, `{"order_id":"ORD-4"}`))

	assert.Equal(t, settledAck, acks.result(1))
	assert.Len(t, updater.calls, 3)
}

func TestCallbackListener_NotFoundIsNotRetried(t *testing.T) {
	updater := &mockStatusUpdater{errs: []error{fmt.Errorf("%w: ORD-5", client.ErrOrderNotFound)}}
	l := newTestListener(updater, 3)
	acks := newFakeAcknowledger()

	l.HandleReserved(context.Background(), delivery(acks, 1, `{"order_id":"ORD-5"}`))

	assert.Equal(t, settledAck, acks.result(1))
	assert.Len(t, updater.calls, 1)
}

func TestCallbackListener_MalformedIsDropped(t *testing.T) {
	updater := &mockStatusUpdater{}
	l := newTestListener(updater, 0)
	acks := newFakeAcknowledger()

	l.HandleReserved(context.Background(), delivery(acks, 1, "not json"))
	l.HandleFailed(context.Background(), delivery(acks, 2, `{"reason":"x"}`))

	assert.Equal(t, settledDrop, acks.result(1))
	assert.Equal(t, settledDrop, acks.result(2))
	assert.Empty(t, updater.calls)
}

func TestCallbackListener_RunMultiplexesBothQueues(t *testing.T) {
	updater := &mockStatusUpdater{}
	l := newTestListener(updater, 0)
	acks := newFakeAcknowledger()

	reserved := make(chan amqp.Delivery, 1)
	failed := make(chan amqp.Delivery, 1)
	reserved <- delivery(acks, 1, `{"order_id":"ORD-1"}`)
	failed <- delivery(acks, 2, `{"order_id":"ORD-2","reason":"out"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, reserved, failed) }()

	require.Eventually(t, func() bool { return acks.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	statuses := map[string]string{}
	for _, c := range updater.calls {
		statuses[c.orderID] = c.status
	}
	assert.Equal(t, map[string]string{"ORD-1": "RESERVED", "ORD-2": "FAILED:out"}, statuses)
}

func TestCallbackListener_RunReturnsWhenQueueCloses(t *testing.T) {
	l := newTestListener(&mockStatusUpdater{}, 0)

	failed := make(chan amqp.Delivery)
	close(failed)

	err := l.Run(context.Background(), make(chan amqp.Delivery), failed)
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
}
