package detector

import (
	"fmt"

	"BreachLedger/internal/event"
	"BreachLedger/internal/observability"
)

// TickValidator validates ticks and dedupes them per instrument using the
// monotonic source sequence. Rejections and gaps feed the shared prometheus
// counters; the local maps back per-worker introspection in tests.
// Not thread-safe, owned by a single partition worker.
type TickValidator struct {
	lastSeq map[string]int64 // instrument -> last accepted source sequence
	prom    *observability.Metrics

	rejected   map[string]int64 // reason -> count
	duplicates map[string]int64 // instrument -> count
	gaps       map[string]int64 // instrument -> count
}

func NewTickValidator(prom *observability.Metrics) *TickValidator {
	return &TickValidator{
		lastSeq:    make(map[string]int64),
		prom:       prom,
		rejected:   make(map[string]int64),
		duplicates: make(map[string]int64),
		gaps:       make(map[string]int64),
	}
}

// Validate rejects malformed ticks and duplicates. Gaps in the source
// sequence are tolerated (counted only); stale sequences are duplicates.
// Out-of-order ticks within a gap still pass; the breach test is stateless
// per tick, only the transition is stateful.
func (v *TickValidator) Validate(t *event.Tick) error {
	if t.ClosingPrice <= 0 {
		v.reject("invalid_reference_price")
		return fmt.Errorf("%w: instrument=%s closing_price=%d",
			ErrInvalidReferencePrice, t.Instrument, t.ClosingPrice)
	}
	if t.Price <= 0 {
		v.reject("invalid_price")
		return fmt.Errorf("%w: instrument=%s price=%d",
			ErrInvalidReferencePrice, t.Instrument, t.Price)
	}

	last, seen := v.lastSeq[t.Instrument]
	if seen && t.SourceSeq <= last {
		v.duplicates[t.Instrument]++
		v.reject("duplicate")
		return fmt.Errorf("%w: instrument=%s seq=%d last=%d",
			ErrDuplicateTick, t.Instrument, t.SourceSeq, last)
	}
	if seen && t.SourceSeq > last+1 {
		// Gap. Tolerated, the feed is at-least-once, not gap-free
		v.gaps[t.Instrument]++
		if v.prom != nil {
			v.prom.SequenceGaps.WithLabelValues(t.Instrument).Inc()
		}
	}

	v.lastSeq[t.Instrument] = t.SourceSeq
	return nil
}

func (v *TickValidator) reject(reason string) {
	v.rejected[reason]++
	if v.prom != nil {
		v.prom.TicksRejected.WithLabelValues(reason).Inc()
	}
}

// LastSequence returns the last accepted sequence for an instrument.
func (v *TickValidator) LastSequence(instrument string) (int64, bool) {
	seq, ok := v.lastSeq[instrument]
	return seq, ok
}

// RestoreSequence seeds the dedup watermark (used during recovery).
func (v *TickValidator) RestoreSequence(instrument string, seq int64) {
	v.lastSeq[instrument] = seq
}

func (v *TickValidator) RejectedCount(reason string) int64 {
	return v.rejected[reason]
}

func (v *TickValidator) DuplicateCount(instrument string) int64 {
	return v.duplicates[instrument]
}

func (v *TickValidator) GapCount(instrument string) int64 {
	return v.gaps[instrument]
}
