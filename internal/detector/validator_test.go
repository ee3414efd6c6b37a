package detector_test

import (
	"errors"
	"testing"

	"BreachLedger/internal/detector"
	"BreachLedger/internal/event"
)

func vtick(instrument string, price, closing, seq int64) *event.Tick {
	return &event.Tick{
		Instrument:   instrument,
		TradingDay:   "2026-03-10",
		Price:        price,
		ClosingPrice: closing,
		SourceSeq:    seq,
	}
}

func TestValidator_RejectsNonPositivePrices(t *testing.T) {
	v := detector.NewTickValidator(nil)

	if err := v.Validate(vtick("AAPL", 10000, 0, 1)); !errors.Is(err, detector.ErrInvalidReferencePrice) {
		t.Errorf("zero closing price: got %v", err)
	}
	if err := v.Validate(vtick("AAPL", 10000, -100, 2)); !errors.Is(err, detector.ErrInvalidReferencePrice) {
		t.Errorf("negative closing price: got %v", err)
	}
	if err := v.Validate(vtick("AAPL", 0, 10000, 3)); !errors.Is(err, detector.ErrInvalidReferencePrice) {
		t.Errorf("zero price: got %v", err)
	}
	if v.RejectedCount("invalid_reference_price") != 2 {
		t.Errorf("rejected count: got %d, want 2", v.RejectedCount("invalid_reference_price"))
	}
}

func TestValidator_SequenceDedup(t *testing.T) {
	v := detector.NewTickValidator(nil)

	if err := v.Validate(vtick("AAPL", 10000, 9800, 5)); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := v.Validate(vtick("AAPL", 10000, 9800, 5)); !errors.Is(err, detector.ErrDuplicateTick) {
		t.Errorf("same seq: got %v", err)
	}
	if err := v.Validate(vtick("AAPL", 10000, 9800, 4)); !errors.Is(err, detector.ErrDuplicateTick) {
		t.Errorf("stale seq: got %v", err)
	}
	if v.DuplicateCount("AAPL") != 2 {
		t.Errorf("duplicate count: got %d, want 2", v.DuplicateCount("AAPL"))
	}
}

func TestValidator_GapsTolerated(t *testing.T) {
	v := detector.NewTickValidator(nil)

	if err := v.Validate(vtick("AAPL", 10000, 9800, 1)); err != nil {
		t.Fatalf("seq 1: %v", err)
	}
	if err := v.Validate(vtick("AAPL", 10000, 9800, 10)); err != nil {
		t.Fatalf("seq 10 after gap: %v", err)
	}
	if v.GapCount("AAPL") != 1 {
		t.Errorf("gap count: got %d, want 1", v.GapCount("AAPL"))
	}

	// Watermark is now 10; the skipped range is stale.
	if err := v.Validate(vtick("AAPL", 10000, 9800, 7)); !errors.Is(err, detector.ErrDuplicateTick) {
		t.Errorf("seq inside gap after watermark advanced: got %v", err)
	}
}

func TestValidator_InstrumentsIndependent(t *testing.T) {
	v := detector.NewTickValidator(nil)

	if err := v.Validate(vtick("AAPL", 10000, 9800, 100)); err != nil {
		t.Fatalf("AAPL: %v", err)
	}
	if err := v.Validate(vtick("MSFT", 10000, 9800, 1)); err != nil {
		t.Errorf("MSFT seq 1 must be independent of AAPL watermark: %v", err)
	}
}

func TestValidator_RestoreSequence(t *testing.T) {
	v := detector.NewTickValidator(nil)
	v.RestoreSequence("AAPL", 50)

	if err := v.Validate(vtick("AAPL", 10000, 9800, 50)); !errors.Is(err, detector.ErrDuplicateTick) {
		t.Errorf("restored watermark should reject seq 50: got %v", err)
	}
	if err := v.Validate(vtick("AAPL", 10000, 9800, 51)); err != nil {
		t.Errorf("seq 51 after restore: %v", err)
	}

	seq, ok := v.LastSequence("AAPL")
	if !ok || seq != 51 {
		t.Errorf("last sequence: got %d/%v, want 51/true", seq, ok)
	}
}
