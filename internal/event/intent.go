package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryIntent is the hand-off to the external delivery system.
// AttemptID is unique per enqueue attempt; Key is the deterministic
// idempotency boundary the delivery workers dedupe on.
type DeliveryIntent struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	AlertID    string    `json:"alert_id"`
	UserID     string    `json:"user_id"`
	Key        string    `json:"idempotency_key"`
	Instrument string    `json:"instrument_id"`
	TradingDay string    `json:"trading_day"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Payload carries the breach summary shown to the user.
	PctChangePPM int64     `json:"pct_change_ppm"`
	Direction    Direction `json:"direction"`
}

// IntentKey builds the deterministic idempotency key for one
// (user, trading_day, instrument).
func IntentKey(userID, tradingDay, instrument string) string {
	return fmt.Sprintf("%s#%s#%s", userID, tradingDay, instrument)
}

func (d *DeliveryIntent) IdempotencyKey() string {
	return d.Key
}

func (d *DeliveryIntent) EventType() EventType {
	return EventTypeDeliveryIntent
}

func (d *DeliveryIntent) InstrumentID() string {
	return d.Instrument
}

func (d *DeliveryIntent) SourceSequence() int64 {
	return 0
}
