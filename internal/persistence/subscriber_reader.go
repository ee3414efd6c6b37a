package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BreachLedger/internal/fanout"
)

// PostgresShardReader serves subscriber pages from the subscriptions table.
// The shard column is computed at subscribe time with fanout.ShardFor, so
// reads never hash; keyset pagination on user_id keeps pages stable under
// concurrent churn. The created_at filter pins enumeration to the breach
// time: users who subscribed later are invisible to a replay.
type PostgresShardReader struct {
	db        *sql.DB
	numShards int
}

func NewPostgresShardReader(db *sql.DB, numShards int) *PostgresShardReader {
	if numShards <= 0 {
		numShards = fanout.DefaultNumShards
	}
	return &PostgresShardReader{db: db, numShards: numShards}
}

func (r *PostgresShardReader) ListShard(ctx context.Context, instrument string, shard int, asOf time.Time, afterUser string, limit int) ([]fanout.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id
		FROM alert_log.subscriptions
		WHERE instrument_id = $1 AND shard = $2 AND created_at <= $3 AND user_id > $4
		ORDER BY user_id
		LIMIT $5`,
		instrument, shard, asOf, afterUser, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list shard %d: %w", shard, err)
	}
	defer rows.Close()

	var subs []fanout.Subscriber
	for rows.Next() {
		var s fanout.Subscriber
		if err := rows.Scan(&s.UserID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Subscribe registers a user for an instrument's alerts. Idempotent.
func (r *PostgresShardReader) Subscribe(ctx context.Context, instrument, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_log.subscriptions (instrument_id, user_id, shard)
		VALUES ($1, $2, $3)
		ON CONFLICT (instrument_id, user_id) DO NOTHING`,
		instrument, userID, fanout.ShardFor(userID, r.numShards),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s to %s: %w", userID, instrument, err)
	}
	return nil
}

// Unsubscribe removes a user's subscription. Idempotent.
func (r *PostgresShardReader) Unsubscribe(ctx context.Context, instrument, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM alert_log.subscriptions WHERE instrument_id = $1 AND user_id = $2`,
		instrument, userID,
	)
	if err != nil {
		return fmt.Errorf("unsubscribe %s from %s: %w", userID, instrument, err)
	}
	return nil
}
