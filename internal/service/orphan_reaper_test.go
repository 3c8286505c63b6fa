package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/asktourist/marketplace/config"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/mocks"
	fakes "github.com/asktourist/marketplace/internal/mocks/auth"
	"github.com/asktourist/marketplace/internal/ports"
)

func newReaper(t *testing.T, q ports.OrphanQueue, id ports.IdentityProvider, maxAttempts int) *OrphanReaperService {
	t.Helper()
	svc, err := NewOrphanReaperService(OrphanReaperServiceOptions{
		Queue:    q,
		Identity: id,
		Config:   config.OrphanReaperConfig{Interval: time.Minute, BatchSize: 10, MaxAttempts: maxAttempts},
	})
	require.NoError(t, err)
	return svc
}

func TestNewOrphanReaperService_RequiresDeps(t *testing.T) {
	_, err := NewOrphanReaperService(OrphanReaperServiceOptions{Identity: fakes.NewFakeIdentityProvider()})
	require.Error(t, err)
	_, err = NewOrphanReaperService(OrphanReaperServiceOptions{Queue: &fakes.MemoryOrphanQueue{}})
	require.Error(t, err)
}

func TestOrphanReaper_RunOnce(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	identity := mocks.NewMockIdentityProvider(ctrl)
	queue := &fakes.MemoryOrphanQueue{}

	require.NoError(t, queue.Enqueue(ctx, ports.Orphan{UserID: "gone", Attempts: 1}))
	require.NoError(t, queue.Enqueue(ctx, ports.Orphan{UserID: "already-gone", Attempts: 1}))
	require.NoError(t, queue.Enqueue(ctx, ports.Orphan{UserID: "flaky", Attempts: 1}))
	require.NoError(t, queue.Enqueue(ctx, ports.Orphan{UserID: "hopeless", Attempts: 2}))

	down := apperrors.New(apperrors.ErrCodeUnavailable, "admin api down")
	identity.EXPECT().DeleteUser(gomock.Any(), "gone").Return(nil)
	identity.EXPECT().DeleteUser(gomock.Any(), "already-gone").Return(apperrors.NotFound("User not found"))
	identity.EXPECT().DeleteUser(gomock.Any(), "flaky").Return(down)
	identity.EXPECT().DeleteUser(gomock.Any(), "hopeless").Return(down)

	svc := newReaper(t, queue, identity, 3)
	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReapResult{Deleted: 2, Requeued: 1, Dropped: 1}, res)

	left, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "flaky", left[0].UserID)
	assert.Equal(t, 2, left[0].Attempts)
}

func TestOrphanReaper_RunOnce_DequeueError(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockOrphanQueue(ctrl)
	queueErr := errors.New("redis down")
	queue.EXPECT().Dequeue(gomock.Any(), 10).Return(nil, queueErr)

	svc := newReaper(t, queue, fakes.NewFakeIdentityProvider(), 3)
	_, err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, queueErr)
}

func TestOrphanReaper_RunOnce_RequeueError(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockOrphanQueue(ctrl)
	identity := fakes.NewFakeIdentityProvider()
	identity.DeleteErr = errors.New("still failing")

	queueErr := errors.New("redis down")
	queue.EXPECT().Dequeue(gomock.Any(), 10).Return([]ports.Orphan{{UserID: "u1", Attempts: 1}}, nil)
	queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(queueErr)

	svc := newReaper(t, queue, identity, 5)
	_, err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, queueErr)
}

func TestOrphanReaper_RunOnce_ShutdownDoesNotSpendAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	identity := mocks.NewMockIdentityProvider(ctrl)
	queue := &fakes.MemoryOrphanQueue{}
	require.NoError(t, queue.Enqueue(context.Background(), ports.Orphan{UserID: "slow", Attempts: 1}))
	require.NoError(t, queue.Enqueue(context.Background(), ports.Orphan{UserID: "interrupted", Attempts: 2}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The identity service timing out on its own still counts.
	identity.EXPECT().DeleteUser(gomock.Any(), "slow").Return(context.DeadlineExceeded)
	identity.EXPECT().DeleteUser(gomock.Any(), "interrupted").DoAndReturn(func(context.Context, string) error {
		cancel()
		return context.Canceled
	})

	res, err := newReaper(t, queue, identity, 3).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReapResult{Requeued: 2}, res)

	left, err := queue.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	attempts := map[string]int{left[0].UserID: left[0].Attempts, left[1].UserID: left[1].Attempts}
	assert.Equal(t, map[string]int{"slow": 2, "interrupted": 2}, attempts)
}

func TestOrphanReaper_Run_StopsOnCancel(t *testing.T) {
	identity := fakes.NewFakeIdentityProvider()
	queue := &fakes.MemoryOrphanQueue{}
	require.NoError(t, queue.Enqueue(context.Background(), ports.Orphan{UserID: "u1", Attempts: 1}))

	svc := newReaper(t, queue, identity, 3)
	svc.config.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := queue.Len(context.Background())
		return n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.Equal(t, []string{"u1"}, identity.Deleted)
}
