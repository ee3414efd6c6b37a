package rules_test

import (
	"sync"
	"testing"

	"BreachLedger/internal/event"
	"BreachLedger/internal/rules"
)

func TestManager_InitialSnapshot(t *testing.T) {
	m := rules.NewManager(rules.DefaultThresholdPPM, 1)
	snap := m.Current()
	if snap.ThresholdPPM != 50_000 {
		t.Errorf("threshold: got %d, want 50000", snap.ThresholdPPM)
	}
	if snap.RuleVersion != 1 {
		t.Errorf("version: got %d, want 1", snap.RuleVersion)
	}
}

func TestManager_ApplySwapsSnapshot(t *testing.T) {
	m := rules.NewManager(rules.DefaultThresholdPPM, 1)
	before := m.Current()

	if err := m.Apply(&event.RuleUpdate{ThresholdPPM: 30_000, RuleVersion: 2}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	after := m.Current()
	if after.ThresholdPPM != 30_000 || after.RuleVersion != 2 {
		t.Errorf("snapshot not updated: %+v", after)
	}
	// The old snapshot stays immutable for readers that hold it.
	if before.ThresholdPPM != 50_000 {
		t.Errorf("prior snapshot mutated: %+v", before)
	}
}

func TestManager_RejectsInvalidUpdates(t *testing.T) {
	m := rules.NewManager(rules.DefaultThresholdPPM, 3)

	cases := []struct {
		name string
		upd  event.RuleUpdate
	}{
		{"zero threshold", event.RuleUpdate{ThresholdPPM: 0, RuleVersion: 4}},
		{"negative threshold", event.RuleUpdate{ThresholdPPM: -1, RuleVersion: 4}},
		{"threshold at scale", event.RuleUpdate{ThresholdPPM: 1_000_000, RuleVersion: 4}},
		{"version decrease", event.RuleUpdate{ThresholdPPM: 40_000, RuleVersion: 2}},
	}
	for _, tc := range cases {
		if err := m.Apply(&tc.upd); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}

	snap := m.Current()
	if snap.ThresholdPPM != rules.DefaultThresholdPPM || snap.RuleVersion != 3 {
		t.Errorf("rejected updates must not change the snapshot: %+v", snap)
	}
}

func TestManager_ConcurrentAppliesKeepNewestVersion(t *testing.T) {
	m := rules.NewManager(rules.DefaultThresholdPPM, 1)

	// Racing v2 against v3: whichever order they land in, the final
	// snapshot must hold v3. The losing v2 either installs first and is
	// superseded, or arrives late and is rejected.
	var wg sync.WaitGroup
	for _, upd := range []event.RuleUpdate{
		{ThresholdPPM: 30_000, RuleVersion: 2},
		{ThresholdPPM: 40_000, RuleVersion: 3},
	} {
		wg.Add(1)
		go func(upd event.RuleUpdate) {
			defer wg.Done()
			m.Apply(&upd)
		}(upd)
	}
	wg.Wait()

	snap := m.Current()
	if snap.RuleVersion != 3 || snap.ThresholdPPM != 40_000 {
		t.Errorf("final snapshot: %+v, want version 3 threshold 40000", snap)
	}
}

func TestManager_SameVersionThresholdChangeAllowed(t *testing.T) {
	m := rules.NewManager(rules.DefaultThresholdPPM, 2)
	if err := m.Apply(&event.RuleUpdate{ThresholdPPM: 60_000, RuleVersion: 2}); err != nil {
		t.Fatalf("same-version update: %v", err)
	}
	if m.Current().ThresholdPPM != 60_000 {
		t.Errorf("threshold: got %d, want 60000", m.Current().ThresholdPPM)
	}
}
