package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BreachLedger/internal/event"
	"BreachLedger/internal/observability"
)

// Config tunes the fan-out engine. Zero values fall back to defaults.
type Config struct {
	// NumShards is the subscriber shard count. Must match the shard
	// column of the subscriptions table.
	NumShards int
	// ShardConcurrency caps how many shards are processed at once.
	ShardConcurrency int
	// PageSize is the subscriber page size within a shard.
	PageSize int
	// ShardDeadline bounds one shard attempt including all its pages.
	ShardDeadline time.Duration
	// MaxRetries is the number of retries after the first shard attempt.
	MaxRetries int
	// InitialBackoff doubles per retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// LedgerTTL is how long a notification claim stays in the ledger.
	LedgerTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.NumShards <= 0 {
		c.NumShards = DefaultNumShards
	}
	if c.ShardConcurrency <= 0 {
		c.ShardConcurrency = 8
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.ShardDeadline <= 0 {
		c.ShardDeadline = 30 * time.Second
	}
	// MaxRetries: 0 means default, negative means no retries.
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	} else if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.LedgerTTL <= 0 {
		c.LedgerTTL = 48 * time.Hour
	}
	return c
}

// Engine turns one breach event into delivery intents for every subscriber
// of the instrument. Shards are independent units of work: each is retried
// on its own, and a replayed breach re-runs all shards with the ledger
// suppressing everything already claimed.
type Engine struct {
	cfg     Config
	reader  ShardReader
	ledger  NotificationLedger
	outbox  Outbox
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewEngine(
	cfg Config,
	reader ShardReader,
	ledger NotificationLedger,
	outbox Outbox,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		reader:  reader,
		ledger:  ledger,
		outbox:  outbox,
		metrics: metrics,
		log:     log,
	}
}

// FanOut processes all shards for one breach. It returns an error when any
// shard still failed after its retry budget; the caller naks the breach so
// the whole fan-out is replayed, which is safe because claimed entries are
// skipped.
func (e *Engine) FanOut(ctx context.Context, b *event.Breach) error {
	start := time.Now()

	sem := make(chan struct{}, e.cfg.ShardConcurrency)
	errCh := make(chan error, e.cfg.NumShards)

	for shard := 0; shard < e.cfg.NumShards; shard++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		go func(shard int) {
			defer func() { <-sem }()
			errCh <- e.processShard(ctx, b, shard)
		}(shard)
	}

	var failed int
	var firstErr error
	for i := 0; i < e.cfg.NumShards; i++ {
		if err := <-errCh; err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if e.metrics != nil {
		e.metrics.FanoutDuration.Observe(time.Since(start).Seconds())
	}

	if failed > 0 {
		if e.metrics != nil {
			e.metrics.FanoutEvents.WithLabelValues("failed").Inc()
		}
		return fmt.Errorf("fan-out %s: %d/%d shards failed: %w", b.AlertID, failed, e.cfg.NumShards, firstErr)
	}

	if e.metrics != nil {
		e.metrics.FanoutEvents.WithLabelValues("completed").Inc()
	}
	e.log.Info().
		Str("alert_id", b.AlertID).
		Str("instrument", b.Instrument).
		Dur("elapsed", time.Since(start)).
		Msg("fan-out completed")
	return nil
}

// processShard runs one shard with retries. Each attempt gets a fresh
// deadline; backoff between attempts doubles up to the cap.
func (e *Engine) processShard(ctx context.Context, b *event.Breach, shard int) error {
	backoff := e.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.ShardRetries.Inc()
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > e.cfg.MaxBackoff {
				backoff = e.cfg.MaxBackoff
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.ShardDeadline)
		err := e.deliverShard(attemptCtx, b, shard)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		e.log.Warn().
			Str("alert_id", b.AlertID).
			Int("shard", shard).
			Int("attempt", attempt+1).
			Err(err).
			Msg("shard fan-out attempt failed")

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("shard %d exhausted retries: %w", shard, lastErr)
}

// deliverShard makes one pass over a shard's subscribers. Enumeration is
// pinned to the breach timestamp, so replays see the subscriber set as it
// was when the breach happened and never notify anyone retroactively.
// Retrying the shard from the top is idempotent: the ledger suppresses
// everyone already claimed.
func (e *Engine) deliverShard(ctx context.Context, b *event.Breach, shard int) error {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ShardDuration.Observe(time.Since(start).Seconds())
		}
	}()

	after := ""
	for {
		subs, err := e.reader.ListShard(ctx, b.Instrument, shard, b.FirstBreachTs, after, e.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("list shard %d after %q: %w", shard, after, err)
		}
		if len(subs) == 0 {
			return nil
		}
		if e.metrics != nil {
			e.metrics.SubscribersListed.Add(float64(len(subs)))
		}

		for _, sub := range subs {
			if err := e.notify(ctx, b, sub); err != nil {
				return err
			}
		}

		if len(subs) < e.cfg.PageSize {
			return nil
		}
		after = subs[len(subs)-1].UserID
	}
}

// notify claims the ledger entry for one subscriber and, when this call won
// the claim, enqueues the delivery intent. A failed enqueue releases the
// claim so the shard retry can take it again.
func (e *Engine) notify(ctx context.Context, b *event.Breach, sub Subscriber) error {
	created, err := e.ledger.TryRecord(ctx, LedgerEntry{
		UserID:     sub.UserID,
		TradingDay: b.TradingDay,
		Instrument: b.Instrument,
		AlertID:    b.AlertID,
		ExpiresAt:  time.Now().Add(e.cfg.LedgerTTL),
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.LedgerErrors.WithLabelValues("record").Inc()
		}
		return fmt.Errorf("%w: record %s: %v", ErrLedgerUnavailable, sub.UserID, err)
	}
	if !created {
		if e.metrics != nil {
			e.metrics.LedgerConflicts.Inc()
		}
		return nil
	}
	if e.metrics != nil {
		e.metrics.LedgerInserts.Inc()
	}

	intent := &event.DeliveryIntent{
		AttemptID:    uuid.New(),
		AlertID:      b.AlertID,
		UserID:       sub.UserID,
		Key:          event.IntentKey(sub.UserID, b.TradingDay, b.Instrument),
		Instrument:   b.Instrument,
		TradingDay:   b.TradingDay,
		EnqueuedAt:   time.Now().UTC(),
		PctChangePPM: b.PctChangePPM,
		Direction:    b.Direction,
	}
	if err := e.outbox.Enqueue(ctx, intent); err != nil {
		if e.metrics != nil {
			e.metrics.IntentEnqueueFails.Inc()
		}
		if relErr := e.ledger.Release(ctx, sub.UserID, b.TradingDay, b.Instrument); relErr != nil {
			if e.metrics != nil {
				e.metrics.LedgerErrors.WithLabelValues("release").Inc()
			}
			e.log.Error().
				Str("user_id", sub.UserID).
				Str("alert_id", b.AlertID).
				Err(relErr).
				Msg("release after failed enqueue also failed, intent may be lost until ledger TTL")
		}
		return fmt.Errorf("%w: enqueue %s: %v", ErrOutboxUnavailable, intent.Key, err)
	}
	if e.metrics != nil {
		e.metrics.IntentsEmitted.Inc()
	}
	return nil
}
