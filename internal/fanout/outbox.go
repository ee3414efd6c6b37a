package fanout

import (
	"context"
	"errors"

	"BreachLedger/internal/event"
)

// ErrOutboxUnavailable wraps publish failures of the delivery outbox.
var ErrOutboxUnavailable = errors.New("delivery outbox unavailable")

// Outbox hands delivery intents to the downstream delivery system. Enqueue
// must be safe to call more than once with the same intent key; the
// transport deduplicates on it.
type Outbox interface {
	Enqueue(ctx context.Context, intent *event.DeliveryIntent) error
}
