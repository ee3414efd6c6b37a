package event

import (
	"fmt"
	"time"
)

// Fixed-point scales.
// Prices carry decimal_precision=2 (scale 100, i.e. cents).
// Percentage changes carry decimal_precision=6 (scale 1_000_000, ppm).
const (
	PriceScale int64 = 100
	PctScale   int64 = 1_000_000
)

// Tick is a single price observation from the market-data feed.
// Delivery is at-least-once and may be duplicated or reordered; SourceSeq is
// monotonic per instrument at the source and drives dedup.
type Tick struct {
	Instrument   string
	TradingDay   string // exchange-scoped session date, e.g. "2026-03-02"
	Price        int64  // Fixed-point: price scale
	ClosingPrice int64  // Prior close, fixed-point: price scale
	SourceSeq    int64  // Monotonic per instrument
	Timestamp    time.Time
}

func (t *Tick) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", t.Instrument, t.TradingDay, t.SourceSeq)
}

func (t *Tick) EventType() EventType {
	return EventTypeTick
}

func (t *Tick) InstrumentID() string {
	return t.Instrument
}

func (t *Tick) SourceSequence() int64 {
	return t.SourceSeq
}

// PctChangePPM returns (price - closing) / closing in parts-per-million.
// Caller must have validated ClosingPrice > 0.
func (t *Tick) PctChangePPM() int64 {
	return (t.Price - t.ClosingPrice) * PctScale / t.ClosingPrice
}
