package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderID returns a short human-readable id such as ORD-482913-9f86d0.
// Uniqueness comes from the random suffix; the millisecond part only helps
// reading logs.
func NewOrderID() string {
	return newOrderID(time.Now())
}

func newOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli()%1_000_000, suffix)
}
