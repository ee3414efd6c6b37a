package detector_test

import (
	"testing"

	"BreachLedger/internal/detector"
)

func TestComputeAlertID_Deterministic(t *testing.T) {
	a := detector.ComputeAlertID("2026-03-10", "AAPL", 1)
	b := detector.ComputeAlertID("2026-03-10", "AAPL", 1)
	if a != b {
		t.Errorf("same inputs must produce the same alert id: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("alert id should be 64 hex chars, got %d", len(a))
	}
}

func TestComputeAlertID_DistinctPerKey(t *testing.T) {
	base := detector.ComputeAlertID("2026-03-10", "AAPL", 1)
	variants := []string{
		detector.ComputeAlertID("2026-03-11", "AAPL", 1),
		detector.ComputeAlertID("2026-03-10", "MSFT", 1),
		detector.ComputeAlertID("2026-03-10", "AAPL", 2),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base alert id", i)
		}
	}
}
