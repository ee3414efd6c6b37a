package event

import (
	"time"
)

// Direction of a breach relative to the prior close.
type Direction int32

const (
	DirectionDown Direction = -1
	DirectionUp   Direction = 1
)

func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// DirectionFromString parses "up"/"down"; anything else defaults to up.
func DirectionFromString(s string) Direction {
	if s == "down" {
		return DirectionDown
	}
	return DirectionUp
}

// Breach is the canonical first-breach record for one
// (instrument, trading_day, rule_version). Immutable once created;
// superseded only by a new rule version.
// AlertID is a deterministic hash of (trading_day, instrument, rule_version),
// so re-emission after a crash converges downstream.
type Breach struct {
	AlertID       string    `json:"alert_id"`
	Instrument    string    `json:"instrument_id"`
	TradingDay    string    `json:"trading_day"`
	RuleVersion   int64     `json:"rule_version"`
	FirstBreachTs time.Time `json:"ts_first_breach"`
	PctChangePPM  int64     `json:"pct_change_ppm"`
	Direction     Direction `json:"direction"`
}

func (b *Breach) IdempotencyKey() string {
	return b.AlertID
}

func (b *Breach) EventType() EventType {
	return EventTypeBreach
}

func (b *Breach) InstrumentID() string {
	return b.Instrument
}

// SourceSequence is not meaningful for derived events; breach ordering is
// scoped by (instrument, trading_day) and dedup runs on AlertID.
func (b *Breach) SourceSequence() int64 {
	return 0
}
