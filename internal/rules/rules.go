package rules

import (
	"fmt"
	"sync/atomic"

	"BreachLedger/internal/event"
)

// DefaultThresholdPPM is the 5% breach threshold in ppm.
const DefaultThresholdPPM int64 = 50_000

// Snapshot is an immutable view of the active rule configuration.
// Detectors read one snapshot per tick; updates never mutate in place,
// a new snapshot is swapped in atomically.
type Snapshot struct {
	ThresholdPPM int64
	RuleVersion  int64
}

// Manager holds the active rule snapshot and applies hot-reload updates.
type Manager struct {
	current atomic.Pointer[Snapshot]
}

func NewManager(thresholdPPM, ruleVersion int64) *Manager {
	m := &Manager{}
	m.current.Store(&Snapshot{
		ThresholdPPM: thresholdPPM,
		RuleVersion:  ruleVersion,
	})
	return m
}

// Current returns the active snapshot. The returned value must not be
// mutated.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// validateStatic checks the ranges that do not depend on the installed
// snapshot: threshold > 0 and threshold < 1_000_000. The version floor is
// enforced inside Apply's compare-and-swap loop.
func validateStatic(upd *event.RuleUpdate) error {
	if upd.ThresholdPPM <= 0 {
		return fmt.Errorf("threshold_ppm must be > 0, got %d", upd.ThresholdPPM)
	}
	if upd.ThresholdPPM >= event.PctScale {
		return fmt.Errorf("threshold_ppm must be < %d, got %d", event.PctScale, upd.ThresholdPPM)
	}
	return nil
}

// Apply validates and installs a rule update. The version check and the
// swap form one compare-and-swap step, so concurrent applies can never
// leave an older version installed last.
func (m *Manager) Apply(upd *event.RuleUpdate) error {
	if err := validateStatic(upd); err != nil {
		return fmt.Errorf("rule update rejected: %w", err)
	}
	next := &Snapshot{
		ThresholdPPM: upd.ThresholdPPM,
		RuleVersion:  upd.RuleVersion,
	}
	for {
		cur := m.current.Load()
		if upd.RuleVersion < cur.RuleVersion {
			return fmt.Errorf("rule update rejected: rule_version must not decrease: current=%d, got %d", cur.RuleVersion, upd.RuleVersion)
		}
		if m.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}
