package detector

import (
	"context"
	"time"

	"BreachLedger/internal/event"
)

// BreachState is the per (instrument, trading_day, rule_version) gate.
// Created lazily on the first tick of the day; HasBreached flips false→true
// exactly once and is never reset except by a new trading day or a rule
// version bump (which scopes a fresh state).
type BreachState struct {
	Instrument    string
	TradingDay    string
	RuleVersion   int64
	HasBreached   bool
	FirstBreachTs time.Time
	Direction     event.Direction
	PctChangePPM  int64
}

// StateKey identifies one breach gate.
type StateKey struct {
	Instrument  string
	TradingDay  string
	RuleVersion int64
}

func (s *BreachState) Key() StateKey {
	return StateKey{
		Instrument:  s.Instrument,
		TradingDay:  s.TradingDay,
		RuleVersion: s.RuleVersion,
	}
}

// StateStore persists breach gates and the canonical breach event log.
// Implementations must make CommitBreach atomic: the false→true transition
// and the event record commit together, so a crash between them cannot leave
// a permanently missing or duplicated event. CommitBreach must also be
// idempotent on replay of the same alert_id.
type StateStore interface {
	// Load returns the persisted state for a key, or nil if none exists.
	Load(ctx context.Context, key StateKey) (*BreachState, error)

	// CommitBreach atomically persists the breached state together with its
	// canonical event record.
	CommitBreach(ctx context.Context, st *BreachState, ev *event.Breach) error

	// ListEvents returns all committed breach events for a trading day,
	// used to re-publish idempotently after a restart.
	ListEvents(ctx context.Context, tradingDay string) ([]*event.Breach, error)
}
