package models

import (
	"strings"
	"time"
)

// Order statuses. A failed order carries its reason after the prefix,
// e.g. "FAILED:insufficient stock for Coffee (have 100, need 1000)".
const (
	StatusPlaced       = "PLACED"
	StatusReserved     = "RESERVED"
	StatusFailedPrefix = "FAILED:"
)

type Order struct {
	OrderID   string    `json:"order_id"`
	Item      string    `json:"item"`
	Qty       int       `json:"qty"`
	StudentID string    `json:"student_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateOrderRequest struct {
	Item      string `json:"item"`
	Qty       *int   `json:"qty"`
	StudentID string `json:"student_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// FailedStatus renders the status stored for a failed reservation.
func FailedStatus(reason string) string {
	if reason == "" {
		reason = "unknown"
	}
	return StatusFailedPrefix + reason
}

// ValidStatus reports whether status is one of the lifecycle states.
func ValidStatus(status string) bool {
	return status == StatusPlaced || status == StatusReserved || IsFailed(status)
}

func IsFailed(status string) bool {
	return strings.HasPrefix(status, StatusFailedPrefix)
}

// IsTerminal reports whether no further transition is allowed from status.
func IsTerminal(status string) bool {
	return status == StatusReserved || IsFailed(status)
}
