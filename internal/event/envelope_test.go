package event_test

import (
	"testing"
	"time"

	"BreachLedger/internal/event"
)

// ============================================================================
// Test: Envelope framing
// ============================================================================

func TestEnvelope_WrapCarriesEventIdentity(t *testing.T) {
	b := &event.Breach{
		AlertID:       "feedface",
		Instrument:    "NVDA",
		TradingDay:    "2026-03-10",
		RuleVersion:   2,
		FirstBreachTs: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		PctChangePPM:  72_500,
		Direction:     event.DirectionUp,
	}

	env, err := event.Wrap(b, b.FirstBreachTs)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if env.IdempotencyKey != "feedface" {
		t.Errorf("idempotency key: got %s, want feedface", env.IdempotencyKey)
	}
	if env.EventType != event.EventTypeBreach {
		t.Errorf("event type: got %v, want Breach", env.EventType)
	}
	if env.Instrument != "NVDA" {
		t.Errorf("instrument: got %s, want NVDA", env.Instrument)
	}

	var got event.Breach
	if err := env.Open(event.EventTypeBreach, &got); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got.AlertID != b.AlertID || got.PctChangePPM != b.PctChangePPM {
		t.Errorf("payload: %+v", got)
	}
}

func TestEnvelope_OpenRejectsWrongType(t *testing.T) {
	tick := &event.Tick{
		Instrument: "NVDA",
		TradingDay: "2026-03-10",
		SourceSeq:  7,
	}
	env, err := event.Wrap(tick, tick.Timestamp)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if env.SourceSequence != 7 {
		t.Errorf("source sequence: got %d, want 7", env.SourceSequence)
	}

	var b event.Breach
	if err := env.Open(event.EventTypeBreach, &b); err == nil {
		t.Error("expected error opening a Tick envelope as Breach")
	}
}
