package consumer

import (
	"sync"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// settlement is how a delivery was finished
type settlement string

const (
	settledAck     settlement = "ack"
	settledDrop    settlement = "nack"
	settledRequeue settlement = "requeue"
)

// fakeAcknowledger records settlements per delivery tag
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled map[uint64]settlement
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{settled: make(map[uint64]settlement)}
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled[tag] = settledAck
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if requeue {
		f.settled[tag] = settledRequeue
	} else {
		f.settled[tag] = settledDrop
	}
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) result(tag uint64) settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled[tag]
}

func (f *fakeAcknowledger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settled)
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         []byte(body),
	}
}

func noWait() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}
