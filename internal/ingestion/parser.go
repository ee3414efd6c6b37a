package ingestion

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"BreachLedger/internal/event"
)

// Wire formats received from NATS. Field names use snake_case to match
// upstream producers; prices and percentages are fixed-point integers
// (cents and ppm), never floats.

var tradingDayRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type tickJSON struct {
	InstrumentID string `json:"instrument_id"`
	TradingDay   string `json:"trading_day"`
	Price        int64  `json:"price"`
	ClosingPrice int64  `json:"closing_price"`
	SourceSeq    int64  `json:"source_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

// ParseTick converts raw tick bytes into a typed event. Structural problems
// (bad JSON, missing identity fields) are terminal here; price validity is
// the detector's call so the rejection is counted per instrument.
func ParseTick(data []byte) (*event.Tick, error) {
	var j tickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse tick: %w", err)
	}
	if j.InstrumentID == "" {
		return nil, fmt.Errorf("parse tick: missing instrument_id")
	}
	if !tradingDayRe.MatchString(j.TradingDay) {
		return nil, fmt.Errorf("parse tick: bad trading_day %q", j.TradingDay)
	}
	return &event.Tick{
		Instrument:   j.InstrumentID,
		TradingDay:   j.TradingDay,
		Price:        j.Price,
		ClosingPrice: j.ClosingPrice,
		SourceSeq:    j.SourceSeq,
		Timestamp:    time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}

// ParseBreach decodes an envelope-framed breach event published by a
// detector instance.
func ParseBreach(data []byte) (*event.Breach, error) {
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse breach envelope: %w", err)
	}
	var b event.Breach
	if err := env.Open(event.EventTypeBreach, &b); err != nil {
		return nil, fmt.Errorf("parse breach: %w", err)
	}
	if b.AlertID == "" {
		return nil, fmt.Errorf("parse breach: missing alert_id")
	}
	if b.Instrument == "" {
		return nil, fmt.Errorf("parse breach: missing instrument_id")
	}
	if !tradingDayRe.MatchString(b.TradingDay) {
		return nil, fmt.Errorf("parse breach: bad trading_day %q", b.TradingDay)
	}
	return &b, nil
}

type ruleUpdateJSON struct {
	ThresholdPPM int64 `json:"threshold_ppm"`
	RuleVersion  int64 `json:"rule_version"`
	Seq          int64 `json:"seq"`
	TimestampUs  int64 `json:"timestamp_us"`
}

// ParseRuleUpdate decodes a rule configuration change.
func ParseRuleUpdate(data []byte) (*event.RuleUpdate, error) {
	var j ruleUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse rule update: %w", err)
	}
	return &event.RuleUpdate{
		ThresholdPPM: j.ThresholdPPM,
		RuleVersion:  j.RuleVersion,
		Seq:          j.Seq,
		Timestamp:    time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}
