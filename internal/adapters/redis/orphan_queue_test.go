package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asktourist/marketplace/internal/ports"
)

func TestOrphanQueue_FIFO(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	q := NewOrphanQueue(client, testPrefix())
	ctx := context.Background()

	empty, err := q.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, q.Enqueue(ctx, ports.Orphan{UserID: id, Reason: "profile insert failed"}))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "u2", got[1].UserID)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
