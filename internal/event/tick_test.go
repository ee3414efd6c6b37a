package event_test

import (
	"testing"

	"BreachLedger/internal/event"
)

func TestTick_PctChangePPM(t *testing.T) {
	cases := []struct {
		name    string
		price   int64
		closing int64
		want    int64
	}{
		{"five percent up", 10500, 10000, 50_000},
		{"five percent down", 9500, 10000, -50_000},
		{"flat", 10000, 10000, 0},
		{"truncates toward zero", 9901, 8504, 164_275},
		{"small move truncates", 30001, 30000, 33}, // 33.33 ppm
	}
	for _, tc := range cases {
		tick := &event.Tick{Price: tc.price, ClosingPrice: tc.closing}
		if got := tick.PctChangePPM(); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestTick_IdempotencyKey(t *testing.T) {
	tick := &event.Tick{Instrument: "AAPL", TradingDay: "2026-03-10", SourceSeq: 42}
	if got := tick.IdempotencyKey(); got != "AAPL:2026-03-10:42" {
		t.Errorf("idempotency key: got %q", got)
	}
}

func TestIntentKey(t *testing.T) {
	if got := event.IntentKey("u1", "2026-03-10", "AAPL"); got != "u1#2026-03-10#AAPL" {
		t.Errorf("intent key: got %q", got)
	}
}

func TestDirection_Strings(t *testing.T) {
	if event.DirectionUp.String() != "up" || event.DirectionDown.String() != "down" {
		t.Error("direction string mapping broken")
	}
	if event.DirectionFromString("down") != event.DirectionDown {
		t.Error("parse down")
	}
	if event.DirectionFromString("up") != event.DirectionUp {
		t.Error("parse up")
	}
}
