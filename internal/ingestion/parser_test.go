package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"BreachLedger/internal/event"
	"BreachLedger/internal/ingestion"
)

func TestParseTick_Valid(t *testing.T) {
	data := []byte(`{
		"instrument_id": "AAPL",
		"trading_day": "2026-03-10",
		"price": 10600,
		"closing_price": 10000,
		"source_seq": 42,
		"timestamp_us": 1773153000000000
	}`)

	tick, err := ingestion.ParseTick(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tick.Instrument != "AAPL" || tick.TradingDay != "2026-03-10" {
		t.Errorf("identity: %+v", tick)
	}
	if tick.Price != 10600 || tick.ClosingPrice != 10000 || tick.SourceSeq != 42 {
		t.Errorf("values: %+v", tick)
	}
	if tick.Timestamp.IsZero() || tick.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp: %v", tick.Timestamp)
	}
}

func TestParseTick_Rejections(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"bad json", `{`},
		{"missing instrument", `{"trading_day":"2026-03-10","price":1,"closing_price":1,"source_seq":1}`},
		{"bad trading day", `{"instrument_id":"AAPL","trading_day":"20260310","price":1,"closing_price":1,"source_seq":1}`},
	}
	for _, tc := range cases {
		if _, err := ingestion.ParseTick([]byte(tc.data)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestParseTick_ZeroClosingPricePasses(t *testing.T) {
	// Structural parsing accepts it; the detector rejects and counts it.
	data := []byte(`{"instrument_id":"IPO1","trading_day":"2026-03-10","price":1000,"closing_price":0,"source_seq":1}`)
	tick, err := ingestion.ParseTick(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tick.ClosingPrice != 0 {
		t.Errorf("closing price: got %d, want 0", tick.ClosingPrice)
	}
}

func wrapBreach(t *testing.T, b *event.Breach) []byte {
	t.Helper()
	env, err := event.Wrap(b, b.FirstBreachTs)
	if err != nil {
		t.Fatalf("wrap breach: %v", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestParseBreach_RoundTrip(t *testing.T) {
	data := wrapBreach(t, &event.Breach{
		AlertID:       "deadbeef",
		Instrument:    "TSLA",
		TradingDay:    "2026-03-10",
		RuleVersion:   3,
		FirstBreachTs: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		PctChangePPM:  -80_000,
		Direction:     event.DirectionDown,
	})

	b, err := ingestion.ParseBreach(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.AlertID != "deadbeef" || b.Instrument != "TSLA" || b.RuleVersion != 3 {
		t.Errorf("identity: %+v", b)
	}
	if b.Direction != event.DirectionDown || b.PctChangePPM != -80_000 {
		t.Errorf("payload: %+v", b)
	}
}

func TestParseBreach_MissingAlertID(t *testing.T) {
	data := wrapBreach(t, &event.Breach{Instrument: "TSLA", TradingDay: "2026-03-10"})
	if _, err := ingestion.ParseBreach(data); err == nil {
		t.Error("expected error for missing alert_id")
	}
}

func TestParseBreach_RejectsUnframedPayload(t *testing.T) {
	// A bare breach without the envelope frame has no discriminator.
	data := []byte(`{"alert_id":"deadbeef","instrument_id":"TSLA","trading_day":"2026-03-10"}`)
	if _, err := ingestion.ParseBreach(data); err == nil {
		t.Error("expected error for payload without envelope")
	}
}

func TestParseRuleUpdate(t *testing.T) {
	data := []byte(`{"threshold_ppm":30000,"rule_version":2,"seq":17,"timestamp_us":1773153000000000}`)
	upd, err := ingestion.ParseRuleUpdate(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if upd.ThresholdPPM != 30_000 || upd.RuleVersion != 2 || upd.Seq != 17 {
		t.Errorf("values: %+v", upd)
	}
}
