package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"BreachLedger/internal/event"
)

// ErrNotFound is returned when no breach exists for the requested key.
var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to the alert log and notification
// ledger for the ops HTTP surface.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBreach returns the breach event for an instrument on a trading day.
// When multiple rule versions breached the same day, the highest version
// wins; it reflects the currently active rules.
func (qs *QueryService) GetBreach(ctx context.Context, instrument, tradingDay string) (*BreachResponse, error) {
	row := qs.db.QueryRowContext(ctx, `
		SELECT alert_id, instrument_id, trading_day, rule_version, ts_first_breach, pct_change_ppm, direction
		FROM alert_log.breach_events
		WHERE instrument_id = $1 AND trading_day = $2
		ORDER BY rule_version DESC
		LIMIT 1`,
		instrument, tradingDay,
	)

	b, err := scanBreach(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: breach %s/%s", ErrNotFound, instrument, tradingDay)
	}
	if err != nil {
		return nil, fmt.Errorf("get breach: %w", err)
	}
	return b, nil
}

// ListBreaches returns every breach event for a trading day.
func (qs *QueryService) ListBreaches(ctx context.Context, tradingDay string) ([]BreachResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT alert_id, instrument_id, trading_day, rule_version, ts_first_breach, pct_change_ppm, direction
		FROM alert_log.breach_events
		WHERE trading_day = $1
		ORDER BY ts_first_breach, instrument_id`,
		tradingDay,
	)
	if err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	defer rows.Close()

	var breaches []BreachResponse
	for rows.Next() {
		b, err := scanBreach(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breach: %w", err)
		}
		breaches = append(breaches, *b)
	}
	return breaches, rows.Err()
}

// GetNotificationStatus reports whether a user has been notified about an
// instrument on a trading day.
func (qs *QueryService) GetNotificationStatus(ctx context.Context, userID, tradingDay, instrument string) (*NotificationStatusResponse, error) {
	resp := &NotificationStatusResponse{
		UserID:       userID,
		TradingDay:   tradingDay,
		InstrumentID: instrument,
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT alert_id, created_at, expires_at
		FROM alert_log.notification_ledger
		WHERE user_id = $1 AND trading_day = $2 AND instrument_id = $3`,
		userID, tradingDay, instrument,
	)
	err := row.Scan(&resp.AlertID, &resp.CreatedAt, &resp.ExpiresAt)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notification status: %w", err)
	}
	resp.Notified = true
	return resp, nil
}

// GetDayStats returns aggregate counts for a trading day.
func (qs *QueryService) GetDayStats(ctx context.Context, tradingDay string) (*DayStatsResponse, error) {
	resp := &DayStatsResponse{TradingDay: tradingDay}

	err := qs.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(ts_first_breach) FROM alert_log.breach_events WHERE trading_day = $1`, tradingDay,
	).Scan(&resp.BreachCount, &resp.LatestBreachTs)
	if err != nil {
		return nil, fmt.Errorf("breach count: %w", err)
	}

	err = qs.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_log.notification_ledger WHERE trading_day = $1`, tradingDay,
	).Scan(&resp.NotificationCount)
	if err != nil {
		return nil, fmt.Errorf("notification count: %w", err)
	}

	err = qs.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_log.subscriptions`,
	).Scan(&resp.SubscriptionCount)
	if err != nil {
		return nil, fmt.Errorf("subscription count: %w", err)
	}

	return resp, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBreach(row rowScanner) (*BreachResponse, error) {
	var b BreachResponse
	var direction int32
	if err := row.Scan(
		&b.AlertID, &b.InstrumentID, &b.TradingDay, &b.RuleVersion,
		&b.FirstBreachTs, &b.PctChangePPM, &direction,
	); err != nil {
		return nil, err
	}
	b.Direction = event.Direction(direction).String()
	return &b, nil
}
