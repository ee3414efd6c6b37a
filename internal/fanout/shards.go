package fanout

import (
	"context"
	"hash/fnv"
	"time"
)

// DefaultNumShards is the subscriber shard count used when Config leaves it
// zero. The count is deploy-time configuration: the shard column is computed
// at subscribe time, so changing it on a live deployment requires
// re-sharding the subscriptions table first.
const DefaultNumShards = 64

// Subscriber is one user subscribed to an instrument's alerts.
type Subscriber struct {
	UserID string
}

// ShardReader pages through the subscribers of an instrument, one shard at a
// time. Only subscriptions created at or before asOf are visible, so a
// replayed breach never reaches users who subscribed after the breach
// happened. Results within a shard are ordered by user id so afterUser
// keyset pagination is stable; pass "" to start a shard.
type ShardReader interface {
	ListShard(ctx context.Context, instrument string, shard int, asOf time.Time, afterUser string, limit int) ([]Subscriber, error)
}

// ShardFor maps a user id to one of numShards shards.
func ShardFor(userID string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(numShards))
}
