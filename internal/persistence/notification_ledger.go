package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BreachLedger/internal/fanout"
)

// PostgresLedger backs the fan-out gate with a unique-keyed table. The
// conditional insert's RowsAffected distinguishes a fresh claim from a
// conflict with a prior fan-out, which is the whole idempotency mechanism.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) TryRecord(ctx context.Context, e fanout.LedgerEntry) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO alert_log.notification_ledger
			(user_id, trading_day, instrument_id, alert_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, trading_day, instrument_id) DO NOTHING`,
		e.UserID, e.TradingDay, e.Instrument, e.AlertID, e.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger rows affected: %w", err)
	}
	return n == 1, nil
}

func (l *PostgresLedger) Release(ctx context.Context, userID, tradingDay, instrument string) error {
	_, err := l.db.ExecContext(ctx, `
		DELETE FROM alert_log.notification_ledger
		WHERE user_id = $1 AND trading_day = $2 AND instrument_id = $3`,
		userID, tradingDay, instrument,
	)
	if err != nil {
		return fmt.Errorf("ledger release: %w", err)
	}
	return nil
}

func (l *PostgresLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM alert_log.notification_ledger WHERE expires_at < $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger purge: %w", err)
	}
	return res.RowsAffected()
}
