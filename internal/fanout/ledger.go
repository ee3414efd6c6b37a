package fanout

import (
	"context"
	"errors"
	"time"
)

// ErrLedgerUnavailable wraps infrastructure failures of the notification
// ledger. Shard processing retries on it.
var ErrLedgerUnavailable = errors.New("notification ledger unavailable")

// LedgerEntry is one claimed notification: user U has been (or is being)
// notified about instrument I on trading day D.
type LedgerEntry struct {
	UserID     string
	TradingDay string
	Instrument string
	AlertID    string
	ExpiresAt  time.Time
}

// NotificationLedger is the exactly-once gate for fan-out. The unique key is
// (user_id, trading_day, instrument_id); direction and rule version do not
// participate, so a user gets at most one notification per instrument per
// day no matter how the breach was detected.
type NotificationLedger interface {
	// TryRecord attempts a conditional insert. It returns true when this
	// call created the entry and the caller must enqueue the delivery
	// intent, false when a prior fan-out already claimed it.
	TryRecord(ctx context.Context, e LedgerEntry) (bool, error)

	// Release undoes a claim whose delivery intent could not be enqueued,
	// so a retry can claim it again.
	Release(ctx context.Context, userID, tradingDay, instrument string) error

	// PurgeExpired removes entries whose TTL elapsed before now and
	// returns the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
