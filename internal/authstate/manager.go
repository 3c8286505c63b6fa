package authstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/ports"
)

const defaultIdleTTL = 30 * time.Minute

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Sessions  SessionSource
	Profiles  ProfileSource
	SignOuter SignOuter
	Events    ports.AuthEventBus // optional

	FetchTimeout time.Duration
	IdleTTL      time.Duration
	Logger       *slog.Logger
}

// Manager keeps one Store per live browser session and routes auth events to them.
type Manager struct {
	opts     ManagerOptions
	logger   *slog.Logger
	profiles *sharedProfiles

	mu     sync.Mutex
	stores map[string]*Store
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager constructs a Manager. Call Start to begin consuming events and evicting idle stores.
func NewManager(opts ManagerOptions) *Manager {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger.With("component", "authstate_manager"),
		profiles: &sharedProfiles{
			src:     opts.Profiles,
			timeout: opts.FetchTimeout,
			gens:    make(map[string]uint64),
		},
		stores: make(map[string]*Store),
		stop:   make(chan struct{}),
	}
}

// Start subscribes to the event bus (when configured) and runs the idle janitor until ctx ends
// or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	if m.opts.Events != nil {
		events, unsubscribe, err := m.opts.Events.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe auth events: %w", err)
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() { _ = unsubscribe() }()
			for {
				select {
				case evt, ok := <-events:
					if !ok {
						return
					}
					m.Dispatch(evt)
				case <-ctx.Done():
					return
				case <-m.stop:
					return
				}
			}
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.IdleTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.evictIdle(time.Now())
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
	return nil
}

// Get returns the store for sessionID, creating and starting it on first use.
// It does not wait for the store to settle.
func (m *Manager) Get(sessionID string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.stores[sessionID]; ok {
		return s, nil
	}

	s := NewStore(Options{
		SessionID:    sessionID,
		Sessions:     m.opts.Sessions,
		Profiles:     m.profiles,
		SignOuter:    m.opts.SignOuter,
		FetchTimeout: m.opts.FetchTimeout,
		Logger:       m.opts.Logger,
	})
	s.Start()
	m.stores[sessionID] = s
	return s, nil
}

// Peek returns the store for sessionID without creating one.
func (m *Manager) Peek(sessionID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[sessionID]
	return s, ok
}

// Forget closes and drops the store for sessionID.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	s, ok := m.stores[sessionID]
	delete(m.stores, sessionID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len reports the number of live stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Dispatch routes evt to the store of its session. USER_UPDATED also reaches every store
// signed in as evt.UserID.
func (m *Manager) Dispatch(evt domainauth.Event) {
	if evt.Kind == domainauth.EventUserUpdated && evt.UserID != "" {
		m.profiles.invalidate(evt.UserID)
	}

	m.mu.Lock()
	targets := make([]*Store, 0, 1)
	for id, s := range m.stores {
		if evt.SessionID != "" && id == evt.SessionID {
			targets = append(targets, s)
			continue
		}
		if evt.Kind == domainauth.EventUserUpdated && evt.UserID != "" {
			if st := s.peek(); st.User != nil && st.User.ID == evt.UserID {
				targets = append(targets, s)
			}
		}
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.HandleEvent(evt)
	}
	m.logger.Debug("auth event dispatched", "kind", evt.Kind, "session_id", evt.SessionID, "targets", len(targets))
}

// Close stops background work and closes every store.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stores := m.stores
	m.stores = make(map[string]*Store)
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
	for _, s := range stores {
		s.Close()
	}
	return nil
}

// evictIdle closes stores unread since IdleTTL ago. Stores with live subscribers (open watch
// streams) are kept. Profile generations of users left without a store are pruned.
func (m *Manager) evictIdle(now time.Time) {
	cutoff := now.Add(-m.opts.IdleTTL)
	var idle []*Store
	live := make(map[string]struct{})

	m.mu.Lock()
	for id, s := range m.stores {
		if s.IdleSince().Before(cutoff) && s.subscribers() == 0 {
			idle = append(idle, s)
			delete(m.stores, id)
			continue
		}
		if u := s.peek().User; u != nil {
			live[u.ID] = struct{}{}
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.logger.Info("evicted idle auth stores", "count", len(idle))
	}
	m.profiles.prune(live)
}

// sharedProfiles collapses concurrent profile reads for one identity into a single remote call.
// The key carries a generation that USER_UPDATED bumps, so a read started before an update is
// never shared with readers that started after it. Users without an entry share the base
// generation, which moves forward whenever entries are pruned.
type sharedProfiles struct {
	src     ProfileSource
	timeout time.Duration
	group   singleflight.Group

	mu   sync.Mutex
	seq  uint64
	base uint64
	gens map[string]uint64
}

func (p *sharedProfiles) generation(userID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gens[userID]; ok {
		return g
	}
	return p.base
}

func (p *sharedProfiles) GetByUserID(ctx context.Context, userID string) (*domainauth.Profile, error) {
	key := fmt.Sprintf("%s#%d", userID, p.generation(userID))

	ch := p.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.src.GetByUserID(callCtx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		prof, _ := res.Val.(*domainauth.Profile)
		return prof, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *sharedProfiles) invalidate(userID string) {
	p.mu.Lock()
	p.seq++
	p.gens[userID] = p.seq
	p.mu.Unlock()
}

// prune drops the generations of users not in keep.
func (p *sharedProfiles) prune(keep map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pruned := false
	for userID := range p.gens {
		if _, ok := keep[userID]; !ok {
			delete(p.gens, userID)
			pruned = true
		}
	}
	if pruned {
		p.seq++
		p.base = p.seq
	}
}
