package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedEvent marks a payload that can never be processed, no matter
// how often it is redelivered.
var ErrMalformedEvent = errors.New("malformed event")

// OrderPlacedEvent is published by the order service when a new order is created
type OrderPlacedEvent struct {
	OrderID   string    `json:"order_id"`
	Item      string    `json:"item"`
	Qty       int       `json:"qty"`
	StudentID string    `json:"student_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// IgnoredFields names informational fields that were present but could
	// not be parsed. They are left zero.
	IgnoredFields []string `json:"-"`
}

// InventoryReservedEvent is published after stock was decremented for an order
type InventoryReservedEvent struct {
	OrderID        string `json:"order_id"`
	Item           string `json:"item"`
	Qty            int    `json:"qty"`
	RemainingStock int    `json:"remaining_stock"`
}

// InventoryFailedEvent is published when an order could not be reserved
type InventoryFailedEvent struct {
	OrderID string `json:"order_id"`
	Item    string `json:"item"`
	Qty     int    `json:"qty"`
	Reason  string `json:"reason"`
}

// Notification is the record kept by the notification service for every
// confirmation it sends.
type Notification struct {
	OrderID string    `json:"order_id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// NewOrderPlacedEvent builds the event carrying the full order record.
func NewOrderPlacedEvent(order *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:   order.OrderID,
		Item:      order.Item,
		Qty:       order.Qty,
		StudentID: order.StudentID,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	}
}

// rawOrderPlaced uses pointers so that absent fields can be told apart from
// zero values.
type rawOrderPlaced struct {
	OrderID *string `json:"order_id"`
	Item    *string `json:"item"`
	Qty     *int    `json:"qty"`
}

// DecodeOrderPlaced parses and validates an order.placed payload.
// Any error it returns wraps ErrMalformedEvent. student_id, status and
// created_at are informational: producers disagree on their types, so a
// bad value is reported in IgnoredFields and never makes a message malformed.
func DecodeOrderPlaced(body []byte) (OrderPlacedEvent, error) {
	var raw rawOrderPlaced
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case raw.OrderID == nil || *raw.OrderID == "":
		return OrderPlacedEvent{}, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	case raw.Item == nil || *raw.Item == "":
		return OrderPlacedEvent{}, fmt.Errorf("%w: missing item", ErrMalformedEvent)
	case raw.Qty == nil:
		return OrderPlacedEvent{}, fmt.Errorf("%w: missing qty", ErrMalformedEvent)
	case *raw.Qty < 1:
		return OrderPlacedEvent{}, fmt.Errorf("%w: qty must be positive, got %d", ErrMalformedEvent, *raw.Qty)
	}

	event := OrderPlacedEvent{
		OrderID: *raw.OrderID,
		Item:    *raw.Item,
		Qty:     *raw.Qty,
	}

	// body already parsed as an object above
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(body, &fields)

	decodeExtra := func(name string, dst any) {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return
		}
		if err := json.Unmarshal(v, dst); err != nil {
			event.IgnoredFields = append(event.IgnoredFields, name)
		}
	}
	decodeExtra("student_id", &event.StudentID)
	decodeExtra("status", &event.Status)

	if v, ok := fields["created_at"]; ok && string(v) != "null" {
		createdAt, err := parseTimestamp(v)
		if err != nil {
			event.IgnoredFields = append(event.IgnoredFields, "created_at")
		} else {
			event.CreatedAt = createdAt
		}
	}

	return event, nil
}

// parseTimestamp accepts RFC 3339 strings and epoch seconds
func parseTimestamp(v json.RawMessage) (time.Time, error) {
	var t time.Time
	if err := json.Unmarshal(v, &t); err == nil {
		return t, nil
	}

	var secs float64
	if err := json.Unmarshal(v, &secs); err != nil {
		return time.Time{}, err
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), nil
}

// DecodeInventoryReserved parses an inventory.reserved payload. Only order_id
// is required; downstream consumers render whatever else is present.
func DecodeInventoryReserved(body []byte) (InventoryReservedEvent, error) {
	var event InventoryReservedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return InventoryReservedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.OrderID == "" {
		return InventoryReservedEvent{}, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	return event, nil
}

// DecodeInventoryFailed parses an inventory.failed payload.
func DecodeInventoryFailed(body []byte) (InventoryFailedEvent, error) {
	var event InventoryFailedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return InventoryFailedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.OrderID == "" {
		return InventoryFailedEvent{}, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	return event, nil
}
