package event

import (
	"fmt"
	"time"
)

// RuleUpdate changes the breach threshold and/or rule version at runtime.
// A version bump permits re-evaluation of an already-breached day.
type RuleUpdate struct {
	ThresholdPPM int64 // Fixed-point ppm; 50_000 = 5%
	RuleVersion  int64
	Seq          int64
	Timestamp    time.Time
}

func (r *RuleUpdate) IdempotencyKey() string {
	return fmt.Sprintf("rule:%d:%d", r.RuleVersion, r.Seq)
}

func (r *RuleUpdate) EventType() EventType {
	return EventTypeRuleUpdate
}

func (r *RuleUpdate) InstrumentID() string {
	return ""
}

func (r *RuleUpdate) SourceSequence() int64 {
	return r.Seq
}
