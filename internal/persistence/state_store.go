package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"BreachLedger/internal/detector"
	"BreachLedger/internal/event"
)

// PostgresStateStore is the durable detector.StateStore. Breach state and
// the canonical breach event commit in one transaction; absence of a state
// row means the gate has not fired. Both inserts use ON CONFLICT DO NOTHING
// so redelivered ticks and concurrent detector instances converge on the
// first committed row.
type PostgresStateStore struct {
	db *sql.DB
}

func NewPostgresStateStore(db *sql.DB) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

func (s *PostgresStateStore) Load(ctx context.Context, key detector.StateKey) (*detector.BreachState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT has_breached, ts_first_breach, direction, pct_change_ppm
		FROM alert_log.breach_state
		WHERE instrument_id = $1 AND trading_day = $2 AND rule_version = $3`,
		key.Instrument, key.TradingDay, key.RuleVersion,
	)

	st := &detector.BreachState{
		Instrument:  key.Instrument,
		TradingDay:  key.TradingDay,
		RuleVersion: key.RuleVersion,
	}
	var direction int32
	err := row.Scan(&st.HasBreached, &st.FirstBreachTs, &direction, &st.PctChangePPM)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load breach state: %v", detector.ErrStateUnavailable, err)
	}
	st.Direction = event.Direction(direction)
	return st, nil
}

func (s *PostgresStateStore) CommitBreach(ctx context.Context, st *detector.BreachState, ev *event.Breach) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO alert_log.breach_state
			(instrument_id, trading_day, rule_version, has_breached, ts_first_breach, direction, pct_change_ppm)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instrument_id, trading_day, rule_version) DO NOTHING`,
		st.Instrument, st.TradingDay, st.RuleVersion,
		st.HasBreached, st.FirstBreachTs, int32(st.Direction), st.PctChangePPM,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert breach state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO alert_log.breach_events
			(alert_id, instrument_id, trading_day, rule_version, ts_first_breach, pct_change_ppm, direction)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alert_id) DO NOTHING`,
		ev.AlertID, ev.Instrument, ev.TradingDay, ev.RuleVersion,
		ev.FirstBreachTs, ev.PctChangePPM, int32(ev.Direction),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert breach event: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStateStore) ListEvents(ctx context.Context, tradingDay string) ([]*event.Breach, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, instrument_id, trading_day, rule_version, ts_first_breach, pct_change_ppm, direction
		FROM alert_log.breach_events
		WHERE trading_day = $1
		ORDER BY instrument_id, rule_version`,
		tradingDay,
	)
	if err != nil {
		return nil, fmt.Errorf("list breach events: %w", err)
	}
	defer rows.Close()

	var events []*event.Breach
	for rows.Next() {
		b := &event.Breach{}
		var direction int32
		if err := rows.Scan(
			&b.AlertID, &b.Instrument, &b.TradingDay, &b.RuleVersion,
			&b.FirstBreachTs, &b.PctChangePPM, &direction,
		); err != nil {
			return nil, fmt.Errorf("scan breach event: %w", err)
		}
		b.Direction = event.Direction(direction)
		events = append(events, b)
	}
	return events, rows.Err()
}
