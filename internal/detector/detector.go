package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"BreachLedger/internal/event"
	"BreachLedger/internal/observability"
	"BreachLedger/internal/rules"
)

// Detector is the per-partition breach state machine. It converts a tick
// stream into at most one breach event per (instrument, trading_day,
// rule_version).
// Not thread-safe. Each partition worker owns exactly one Detector, and all
// ticks for an instrument are routed to the same partition (single writer,
// no locks).
type Detector struct {
	partition string
	rules     *rules.Manager
	store     StateStore
	validator *TickValidator
	states    map[StateKey]*BreachState
	day       string // newest trading day seen, bounds the states cache

	// breachChan uses a BLOCKING send: the detector stalls until the
	// fan-out side drains, guaranteeing no committed breach is dropped.
	breachChan chan<- *event.Breach

	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewDetector(
	partition string,
	ruleMgr *rules.Manager,
	store StateStore,
	breachChan chan<- *event.Breach,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Detector {
	return &Detector{
		partition:  partition,
		rules:      ruleMgr,
		store:      store,
		validator:  NewTickValidator(metrics),
		states:     make(map[StateKey]*BreachState),
		breachChan: breachChan,
		metrics:    metrics,
		log:        log,
	}
}

// ProcessTick runs the detection pipeline for one tick:
// validate → dedup → load-or-create gate → threshold test → single
// false→true transition committed atomically with the breach event.
//
// Returned errors are classified by the caller: ErrInvalidReferencePrice and
// ErrDuplicateTick mean the tick is consumed (drop + ack); anything wrapping
// ErrStateUnavailable means fail-closed (nak, redeliver).
func (d *Detector) ProcessTick(ctx context.Context, tick *event.Tick) error {
	start := time.Now()

	prevSeq, hadSeq := d.validator.LastSequence(tick.Instrument)
	if err := d.validator.Validate(tick); err != nil {
		return err
	}

	// Trading days sort lexicographically, so the first tick of a newer
	// day retires every prior day's cached gates. The store keeps the
	// durable rows; only the in-memory cache is bounded here.
	if tick.TradingDay > d.day {
		for k := range d.states {
			if k.TradingDay < tick.TradingDay {
				delete(d.states, k)
			}
		}
		d.day = tick.TradingDay
	}

	snap := d.rules.Current()
	key := StateKey{
		Instrument:  tick.Instrument,
		TradingDay:  tick.TradingDay,
		RuleVersion: snap.RuleVersion,
	}

	st, err := d.loadState(ctx, key)
	if err != nil {
		// Fail closed: the tick will be redelivered, so roll the dedup
		// watermark back or the retry would be discarded as a duplicate.
		d.rollbackSequence(tick.Instrument, prevSeq, hadSeq)
		if d.metrics != nil {
			d.metrics.StateStoreErrors.Inc()
		}
		return err
	}

	if st.HasBreached {
		// Already breached today under this rule version, discard
		// silently regardless of magnitude, metrics only.
		if d.metrics != nil {
			d.metrics.BreachesSuppressed.WithLabelValues(tick.Instrument).Inc()
		}
		d.observeTick(start)
		return nil
	}

	pct := tick.PctChangePPM()
	if abs64(pct) < snap.ThresholdPPM {
		d.observeTick(start)
		return nil
	}

	breached := *st
	breached.HasBreached = true
	breached.FirstBreachTs = tick.Timestamp
	breached.PctChangePPM = pct
	breached.Direction = event.DirectionUp
	if pct < 0 {
		breached.Direction = event.DirectionDown
	}

	ev := &event.Breach{
		AlertID:       ComputeAlertID(tick.TradingDay, tick.Instrument, snap.RuleVersion),
		Instrument:    tick.Instrument,
		TradingDay:    tick.TradingDay,
		RuleVersion:   snap.RuleVersion,
		FirstBreachTs: tick.Timestamp,
		PctChangePPM:  pct,
		Direction:     breached.Direction,
	}

	// Transition and event commit together. The cached gate is only updated
	// after the store accepts the commit, so a failure leaves the partition
	// ready to retry the redelivered tick.
	if err := d.store.CommitBreach(ctx, &breached, ev); err != nil {
		d.rollbackSequence(tick.Instrument, prevSeq, hadSeq)
		if d.metrics != nil {
			d.metrics.StateStoreErrors.Inc()
		}
		return fmt.Errorf("%w: commit breach %s: %v", ErrStateUnavailable, ev.AlertID, err)
	}
	*st = breached

	if d.metrics != nil {
		d.metrics.BreachCommits.Inc()
		d.metrics.BreachesEmitted.WithLabelValues(ev.Direction.String()).Inc()
	}
	d.log.Info().
		Str("instrument", ev.Instrument).
		Str("trading_day", ev.TradingDay).
		Str("alert_id", ev.AlertID).
		Int64("pct_change_ppm", ev.PctChangePPM).
		Str("direction", ev.Direction.String()).
		Msg("first breach of the day")

	// Blocking hand-off to fan-out
	select {
	case d.breachChan <- ev:
	case <-ctx.Done():
		// Commit already happened; startup re-publication covers the gap.
		return ctx.Err()
	}

	d.observeTick(start)
	return nil
}

// loadState returns the cached gate for a key, loading or lazily creating it.
func (d *Detector) loadState(ctx context.Context, key StateKey) (*BreachState, error) {
	if st, ok := d.states[key]; ok {
		return st, nil
	}

	st, err := d.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrStateUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load %s/%s: %v", ErrStateUnavailable, key.Instrument, key.TradingDay, err)
	}
	if st == nil {
		st = &BreachState{
			Instrument:  key.Instrument,
			TradingDay:  key.TradingDay,
			RuleVersion: key.RuleVersion,
		}
	}
	d.states[key] = st
	return st, nil
}

func (d *Detector) rollbackSequence(instrument string, prev int64, had bool) {
	if had {
		d.validator.RestoreSequence(instrument, prev)
	} else {
		delete(d.validator.lastSeq, instrument)
	}
}

func (d *Detector) observeTick(start time.Time) {
	if d.metrics != nil {
		d.metrics.TicksAccepted.WithLabelValues(d.partition).Inc()
		d.metrics.TickDuration.WithLabelValues(d.partition).Observe(time.Since(start).Seconds())
	}
}

// CachedStates reports how many breach gates the detector holds in memory.
func (d *Detector) CachedStates() int {
	return len(d.states)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
