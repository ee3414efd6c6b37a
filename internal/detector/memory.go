package detector

import (
	"context"
	"sync"

	"BreachLedger/internal/event"
)

// MemoryStateStore is an in-process StateStore for tests and single-node
// embedded use. Safe for concurrent use by multiple partitions.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[StateKey]*BreachState
	events map[string]*event.Breach // alert_id -> event

	// FailNext forces the next call to fail, for fail-closed tests.
	FailNext bool
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[StateKey]*BreachState),
		events: make(map[string]*event.Breach),
	}
}

func (m *MemoryStateStore) Load(ctx context.Context, key StateKey) (*BreachState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return nil, ErrStateUnavailable
	}

	st, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *MemoryStateStore) CommitBreach(ctx context.Context, st *BreachState, ev *event.Breach) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return ErrStateUnavailable
	}

	// Idempotent: replay of the same alert_id is a no-op
	if _, exists := m.events[ev.AlertID]; exists {
		return nil
	}

	cp := *st
	m.states[cp.Key()] = &cp
	evCp := *ev
	m.events[ev.AlertID] = &evCp
	return nil
}

func (m *MemoryStateStore) ListEvents(ctx context.Context, tradingDay string) ([]*event.Breach, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*event.Breach
	for _, ev := range m.events {
		if ev.TradingDay == tradingDay {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

// EventCount returns the number of committed breach events.
func (m *MemoryStateStore) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
