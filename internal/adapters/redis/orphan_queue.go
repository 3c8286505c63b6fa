package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/asktourist/marketplace/internal/ports"
)

// OrphanQueue is a FIFO list of identities awaiting repair.
type OrphanQueue struct {
	client redis.UniversalClient
	key    string
}

// NewOrphanQueue creates a queue stored under "<prefix>auth:orphans".
func NewOrphanQueue(client redis.UniversalClient, prefix string) *OrphanQueue {
	return &OrphanQueue{client: client, key: prefix + "auth:orphans"}
}

func (q *OrphanQueue) Enqueue(ctx context.Context, o ports.Orphan) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal orphan: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Dequeue pops up to n of the oldest entries. Entries that fail to decode are dropped.
func (q *OrphanQueue) Dequeue(ctx context.Context, n int) ([]ports.Orphan, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := q.client.RPopCount(ctx, q.key, n).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis rpop: %w", err)
	}

	out := make([]ports.Orphan, 0, len(raw))
	for _, item := range raw {
		var o ports.Orphan
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (q *OrphanQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return n, nil
}
