package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"BreachLedger/internal/event"
)

// In-memory implementations of the fan-out dependencies, used in tests and
// available as a degraded single-process mode.

type ledgerKey struct {
	userID     string
	tradingDay string
	instrument string
}

// MemoryLedger is a map-backed NotificationLedger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[ledgerKey]LedgerEntry

	// FailNext makes the next call fail, for fault injection in tests.
	FailNext bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[ledgerKey]LedgerEntry)}
}

func (l *MemoryLedger) TryRecord(_ context.Context, e LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailNext {
		l.FailNext = false
		return false, errors.New("induced ledger failure")
	}
	k := ledgerKey{e.UserID, e.TradingDay, e.Instrument}
	if _, ok := l.entries[k]; ok {
		return false, nil
	}
	l.entries[k] = e
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, userID, tradingDay, instrument string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ledgerKey{userID, tradingDay, instrument})
	return nil
}

func (l *MemoryLedger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var purged int64
	for k, e := range l.entries {
		if e.ExpiresAt.Before(now) {
			delete(l.entries, k)
			purged++
		}
	}
	return purged, nil
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type memorySub struct {
	userID string
	since  time.Time
}

// MemoryShardReader serves subscribers from memory, sharded with ShardFor.
type MemoryShardReader struct {
	mu        sync.Mutex
	numShards int
	// instrument -> shard -> subscriptions sorted by user id
	subs map[string]map[int][]memorySub
}

func NewMemoryShardReader() *MemoryShardReader {
	return &MemoryShardReader{
		numShards: DefaultNumShards,
		subs:      make(map[string]map[int][]memorySub),
	}
}

func (r *MemoryShardReader) Subscribe(instrument, userID string) {
	r.SubscribeAt(instrument, userID, time.Now())
}

// SubscribeAt registers a subscription with an explicit creation time.
func (r *MemoryShardReader) SubscribeAt(instrument, userID string, since time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shards, ok := r.subs[instrument]
	if !ok {
		shards = make(map[int][]memorySub)
		r.subs[instrument] = shards
	}
	shard := ShardFor(userID, r.numShards)
	users := shards[shard]
	idx := sort.Search(len(users), func(i int) bool { return users[i].userID >= userID })
	if idx < len(users) && users[idx].userID == userID {
		return
	}
	users = append(users, memorySub{})
	copy(users[idx+1:], users[idx:])
	users[idx] = memorySub{userID: userID, since: since}
	shards[shard] = users
}

func (r *MemoryShardReader) ListShard(_ context.Context, instrument string, shard int, asOf time.Time, afterUser string, limit int) ([]Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.subs[instrument][shard]
	start := 0
	if afterUser != "" {
		start = sort.Search(len(users), func(i int) bool { return users[i].userID >= afterUser })
		if start < len(users) && users[start].userID == afterUser {
			start++
		}
	}
	out := make([]Subscriber, 0, limit)
	for _, u := range users[start:] {
		if len(out) == limit {
			break
		}
		if u.since.After(asOf) {
			continue
		}
		out = append(out, Subscriber{UserID: u.userID})
	}
	return out, nil
}

// MemoryOutbox collects delivery intents, deduplicating on the intent key
// the way the broker would.
type MemoryOutbox struct {
	mu      sync.Mutex
	intents []*event.DeliveryIntent
	byKey   map[string]struct{}

	// FailFor makes Enqueue fail while the counter is positive.
	FailFor int
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{byKey: make(map[string]struct{})}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, intent *event.DeliveryIntent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FailFor > 0 {
		o.FailFor--
		return errors.New("induced outbox failure")
	}
	if _, ok := o.byKey[intent.Key]; ok {
		return nil
	}
	o.byKey[intent.Key] = struct{}{}
	o.intents = append(o.intents, intent)
	return nil
}

func (o *MemoryOutbox) Intents() []*event.DeliveryIntent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*event.DeliveryIntent, len(o.intents))
	copy(out, o.intents)
	return out
}
