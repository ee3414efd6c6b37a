package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTick
	EventTypeBreach
	EventTypeDeliveryIntent
	EventTypeRuleUpdate
)

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// InstrumentID returns the instrument context (empty for global events)
	InstrumentID() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

var (
	_ Event = (*Tick)(nil)
	_ Event = (*Breach)(nil)
	_ Event = (*DeliveryIntent)(nil)
	_ Event = (*RuleUpdate)(nil)
)

// Envelope is the wire frame for events this service publishes. The header
// carries everything a consumer needs for dedup and routing without
// decoding the payload.
type Envelope struct {
	IdempotencyKey string    `json:"idempotency_key"`
	EventType      EventType `json:"event_type"`
	Instrument     string    `json:"instrument_id,omitempty"`

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time `json:"timestamp"`

	// Upstream sequence for ordering validation
	SourceSequence int64 `json:"source_seq,omitempty"`

	// JSON-encoded event-specific data
	Payload json.RawMessage `json:"payload"`
}

// Wrap frames an event for publishing. ts is the event's own time.
func Wrap(ev Event, ts time.Time) (*Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.EventType(), err)
	}
	return &Envelope{
		IdempotencyKey: ev.IdempotencyKey(),
		EventType:      ev.EventType(),
		Instrument:     ev.InstrumentID(),
		Timestamp:      ts,
		SourceSequence: ev.SourceSequence(),
		Payload:        payload,
	}, nil
}

// Open decodes the payload into v after checking the discriminator.
func (e *Envelope) Open(want EventType, v interface{}) error {
	if e.EventType != want {
		return fmt.Errorf("envelope holds %s, want %s", e.EventType, want)
	}
	return json.Unmarshal(e.Payload, v)
}

func (et EventType) String() string {
	switch et {
	case EventTypeTick:
		return "Tick"
	case EventTypeBreach:
		return "Breach"
	case EventTypeDeliveryIntent:
		return "DeliveryIntent"
	case EventTypeRuleUpdate:
		return "RuleUpdate"
	default:
		return "Unknown"
	}
}
