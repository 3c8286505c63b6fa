package authstate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

func newTestManager(t *testing.T, opts ManagerOptions) *Manager {
	t.Helper()
	if opts.SignOuter == nil {
		opts.SignOuter = okSignOut()
	}
	m := NewManager(opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_GetReusesStore(t *testing.T) {
	m := newTestManager(t, ManagerOptions{
		Sessions: staticSession(testSession("u1")),
		Profiles: staticProfile(vendorProfile("u1", true)),
	})

	a, err := m.Get("sess-1")
	require.NoError(t, err)
	b, err := m.Get("sess-1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Len())

	st, err := a.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, st.Profile)
}

func TestManager_Forget(t *testing.T) {
	m := newTestManager(t, ManagerOptions{
		Sessions: staticSession(nil),
		Profiles: staticProfile(nil),
	})
	_, err := m.Get("sess-1")
	require.NoError(t, err)

	m.Forget("sess-1")
	_, ok := m.Peek("sess-1")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestManager_DispatchUserUpdatedReachesAllSessions(t *testing.T) {
	var approved atomic.Bool
	sessions := sessionFunc(func(_ context.Context, id string) (*domainauth.Session, error) {
		s := testSession("u1")
		s.ID = id
		return s, nil
	})
	m := newTestManager(t, ManagerOptions{
		Sessions: sessions,
		Profiles: profileFunc(func(_ context.Context, userID string) (*domainauth.Profile, error) {
			return vendorProfile(userID, approved.Load()), nil
		}),
	})

	a, err := m.Get("sess-a")
	require.NoError(t, err)
	b, err := m.Get("sess-b")
	require.NoError(t, err)
	_, err = a.WaitSettled(context.Background())
	require.NoError(t, err)
	_, err = b.WaitSettled(context.Background())
	require.NoError(t, err)

	approved.Store(true)
	m.Dispatch(domainauth.Event{Kind: domainauth.EventUserUpdated, UserID: "u1"})

	for _, s := range []*Store{a, b} {
		require.Eventually(t, func() bool {
			p := s.Snapshot().Profile
			return p != nil && p.IsApproved
		}, time.Second, 5*time.Millisecond)
	}
}

func TestManager_DispatchBySession(t *testing.T) {
	m := newTestManager(t, ManagerOptions{
		Sessions: staticSession(testSession("u1")),
		Profiles: staticProfile(vendorProfile("u1", true)),
	})
	a, err := m.Get("sess-a")
	require.NoError(t, err)
	b, err := m.Get("sess-b")
	require.NoError(t, err)
	_, _ = a.WaitSettled(context.Background())
	_, _ = b.WaitSettled(context.Background())

	m.Dispatch(domainauth.Event{Kind: domainauth.EventSignedOut, SessionID: "sess-a"})

	require.Eventually(t, func() bool { return a.Snapshot().User == nil }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, b.Snapshot().User)
}

func TestManager_EvictIdle(t *testing.T) {
	m := newTestManager(t, ManagerOptions{
		Sessions: staticSession(nil),
		Profiles: staticProfile(nil),
		IdleTTL:  time.Minute,
	})
	_, err := m.Get("sess-1")
	require.NoError(t, err)

	m.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Zero(t, m.Len())
}

func TestManager_EvictIdleKeepsSubscribedStores(t *testing.T) {
	m := newTestManager(t, ManagerOptions{
		Sessions: staticSession(nil),
		Profiles: staticProfile(nil),
		IdleTTL:  time.Minute,
	})
	s, err := m.Get("sess-1")
	require.NoError(t, err)
	_, unsubscribe := s.Subscribe()

	m.evictIdle(time.Now().Add(2 * time.Minute))
	_, ok := m.Peek("sess-1")
	assert.True(t, ok, "store with an open watch must survive eviction")

	unsubscribe()
	m.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Zero(t, m.Len())
}

func TestManager_EvictIdlePrunesProfileGenerations(t *testing.T) {
	m := newTestManager(t, ManagerOptions{
		Sessions: staticSession(testSession("u1")),
		Profiles: staticProfile(vendorProfile("u1", true)),
		IdleTTL:  time.Minute,
	})
	s, err := m.Get("sess-1")
	require.NoError(t, err)
	_, err = s.WaitSettled(context.Background())
	require.NoError(t, err)

	m.Dispatch(domainauth.Event{Kind: domainauth.EventUserUpdated, UserID: "u1"})
	m.Dispatch(domainauth.Event{Kind: domainauth.EventUserUpdated, UserID: "gone"})

	m.evictIdle(time.Now())
	m.profiles.mu.Lock()
	assert.Contains(t, m.profiles.gens, "u1", "user with a live store keeps its generation")
	assert.NotContains(t, m.profiles.gens, "gone")
	m.profiles.mu.Unlock()

	m.evictIdle(time.Now().Add(2 * time.Minute))
	m.profiles.mu.Lock()
	assert.Empty(t, m.profiles.gens)
	m.profiles.mu.Unlock()
}

func TestSharedProfiles_PruneDoesNotReuseEarlierReads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := &sharedProfiles{
		src: profileFunc(func(_ context.Context, userID string) (*domainauth.Profile, error) {
			if calls.Add(1) == 1 {
				<-release
			}
			return vendorProfile(userID, true), nil
		}),
		timeout: time.Second,
		gens:    make(map[string]uint64),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.GetByUserID(context.Background(), "u1")
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	p.invalidate("u1")
	p.prune(nil)
	_, err := p.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	close(release)
	<-done
}

func TestManager_ClosedGet(t *testing.T) {
	m := NewManager(ManagerOptions{Sessions: staticSession(nil), Profiles: staticProfile(nil)})
	require.NoError(t, m.Close())
	_, err := m.Get("sess-1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSharedProfiles_CollapsesConcurrentReads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := &sharedProfiles{
		src: profileFunc(func(_ context.Context, userID string) (*domainauth.Profile, error) {
			calls.Add(1)
			<-release
			return vendorProfile(userID, true), nil
		}),
		timeout: time.Second,
		gens:    make(map[string]uint64),
	}

	var wg sync.WaitGroup
	started := make(chan struct{}, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			prof, err := p.GetByUserID(context.Background(), "u1")
			assert.NoError(t, err)
			assert.Equal(t, "u1", prof.UserID)
		}()
	}
	for range 3 {
		<-started
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSharedProfiles_InvalidateStartsFreshRead(t *testing.T) {
	var calls atomic.Int32
	p := &sharedProfiles{
		src: profileFunc(func(_ context.Context, userID string) (*domainauth.Profile, error) {
			calls.Add(1)
			return vendorProfile(userID, true), nil
		}),
		timeout: time.Second,
		gens:    make(map[string]uint64),
	}

	_, err := p.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	p.invalidate("u1")
	_, err = p.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
