package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"BreachLedger/internal/detector"
	"BreachLedger/internal/event"
	"BreachLedger/internal/fanout"
	"BreachLedger/internal/persistence"
	"BreachLedger/internal/query"
	"BreachLedger/internal/testutil"
)

func TestQueryService_BreachesAndStatus(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := persistence.NewPostgresStateStore(db)
	ledger := persistence.NewPostgresLedger(db)
	qs := query.NewQueryService(db)

	const day = "2026-03-10"
	ts := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	for _, instrument := range []string{"AAPL", "TSLA"} {
		alertID := detector.ComputeAlertID(day, instrument, 1)
		st := &detector.BreachState{
			Instrument: instrument, TradingDay: day, RuleVersion: 1,
			HasBreached: true, FirstBreachTs: ts,
			Direction: event.DirectionUp, PctChangePPM: 60_000,
		}
		ev := &event.Breach{
			AlertID: alertID, Instrument: instrument, TradingDay: day,
			RuleVersion: 1, FirstBreachTs: ts,
			PctChangePPM: 60_000, Direction: event.DirectionUp,
		}
		if err := store.CommitBreach(ctx, st, ev); err != nil {
			t.Fatalf("commit %s: %v", instrument, err)
		}
	}

	if _, err := ledger.TryRecord(ctx, fanout.LedgerEntry{
		UserID: "u1", TradingDay: day, Instrument: "AAPL",
		AlertID: detector.ComputeAlertID(day, "AAPL", 1),
		ExpiresAt: ts.Add(48 * time.Hour),
	}); err != nil {
		t.Fatalf("record notification: %v", err)
	}

	b, err := qs.GetBreach(ctx, "AAPL", day)
	if err != nil {
		t.Fatalf("get breach: %v", err)
	}
	if b.Direction != "up" || b.PctChangePPM != 60_000 {
		t.Errorf("breach: %+v", b)
	}

	if _, err := qs.GetBreach(ctx, "MSFT", day); !errors.Is(err, query.ErrNotFound) {
		t.Errorf("missing breach: got %v, want ErrNotFound", err)
	}

	all, err := qs.ListBreaches(ctx, day)
	if err != nil {
		t.Fatalf("list breaches: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("breaches: got %d, want 2", len(all))
	}

	status, err := qs.GetNotificationStatus(ctx, "u1", day, "AAPL")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Notified {
		t.Error("u1 should be marked notified for AAPL")
	}
	status, err = qs.GetNotificationStatus(ctx, "u2", day, "AAPL")
	if err != nil {
		t.Fatalf("status u2: %v", err)
	}
	if status.Notified {
		t.Error("u2 was never notified")
	}

	stats, err := qs.GetDayStats(ctx, day)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.BreachCount != 2 || stats.NotificationCount != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if stats.LatestBreachTs == nil {
		t.Error("stats: latest breach timestamp missing")
	}
}
