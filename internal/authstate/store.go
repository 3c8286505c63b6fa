package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("auth state store closed")
	// ErrUnsettled is returned by SignOut when no session is loaded and the store cannot tell
	// whether one exists.
	ErrUnsettled = errors.New("auth state not settled")
)

const (
	defaultFetchTimeout = 5 * time.Second
	opQueueSize         = 64
)

// Options configures a Store.
type Options struct {
	SessionID string
	Sessions  SessionSource
	Profiles  ProfileSource
	SignOuter SignOuter

	// FetchTimeout bounds every remote call so Loading can never stick.
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Store is the state container for one browser session.
type Store struct {
	id           string
	sessions     SessionSource
	profiles     ProfileSource
	signOuter    SignOuter
	fetchTimeout time.Duration
	logger       *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	ops     chan func()
	done    chan struct{}
	closing sync.Once

	lastUsed atomic.Int64

	mu        sync.RWMutex
	published State

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int

	// Owned by the loop goroutine.
	cur             State
	sessionSeq      uint64
	profileSeq      uint64
	sessionInflight bool
	profileInflight bool
	cancelSession   context.CancelFunc
	cancelProfile   context.CancelFunc
	waiters         []chan State
}

// NewStore constructs a store and starts its update loop. The initial state is loading
// until Init (or Start) settles it.
func NewStore(opts Options) *Store {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		id:           opts.SessionID,
		sessions:     opts.Sessions,
		profiles:     opts.Profiles,
		signOuter:    opts.SignOuter,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger.With("component", "authstate", "session_id", opts.SessionID),
		ctx:          ctx,
		cancel:       cancel,
		ops:          make(chan func(), opQueueSize),
		done:         make(chan struct{}),
		subs:         make(map[int]chan State),
		cur:          State{Loading: true},
	}
	s.published = s.cur
	s.touch()
	go s.loop()
	return s
}

// ID returns the session id this store tracks.
func (s *Store) ID() string { return s.id }

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.ctx.Done():
			s.cancelFetches()
			return
		}
	}
}

func (s *Store) enqueue(op func()) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.ops <- op:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Start begins initialisation without waiting for it to settle.
func (s *Store) Start() bool {
	return s.enqueue(func() {
		s.cur.Err = ""
		s.startSessionFetch()
	})
}

// Init fetches the current session and, when present, its profile. It returns once the
// state settles. A profile failure leaves User set, Profile nil and Err populated.
func (s *Store) Init(ctx context.Context) error {
	if !s.Start() {
		return ErrClosed
	}
	st, err := s.WaitSettled(ctx)
	if err != nil {
		return err
	}
	if st.Err != "" {
		return errors.New(st.Err)
	}
	return nil
}

// RefreshProfile re-fetches the profile of userID, toggling Loading around the fetch.
// It only applies when userID is the signed-in user.
func (s *Store) RefreshProfile(ctx context.Context, userID string) error {
	if !s.enqueue(func() {
		if s.cur.User == nil || s.cur.User.ID != userID {
			s.cur.Err = "profile refresh ignored: user is not signed in"
			s.commit()
			return
		}
		s.startProfileFetch(userID)
	}) {
		return ErrClosed
	}
	st, err := s.WaitSettled(ctx)
	if err != nil {
		return err
	}
	if st.Err != "" {
		return errors.New(st.Err)
	}
	return nil
}

// SignOut invalidates the loaded session remotely. On failure Err is set and the session, user
// and profile are left untouched; on success they are cleared. While the session is still loading,
// or its fetch failed, the store cannot tell what to invalidate and returns ErrUnsettled.
func (s *Store) SignOut(ctx context.Context) error {
	return s.signOut(ctx, nil)
}

// SignOutSession invalidates sess remotely whether or not the store has loaded it yet, then
// applies the result like SignOut.
func (s *Store) SignOutSession(ctx context.Context, sess domainauth.Session) error {
	return s.signOut(ctx, &sess)
}

func (s *Store) signOut(ctx context.Context, known *domainauth.Session) error {
	result := make(chan error, 1)
	if !s.enqueue(func() {
		target := known
		if target == nil && s.cur.Session != nil {
			target = s.cur.Session
		}
		if target == nil {
			if s.cur.Loading || s.cur.Err != "" {
				result <- ErrUnsettled
				return
			}
			s.clearIdentity()
			s.commit()
			result <- nil
			return
		}
		sess := *target
		go func() {
			callCtx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
			defer cancel()
			err := s.signOuter.SignOut(callCtx, sess)
			if !s.enqueue(func() {
				s.applySignOut(sess.ID, err)
				result <- err
			}) {
				result <- ErrClosed
			}
		}()
	}) {
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// HandleEvent applies a pushed auth event. SIGNED_OUT clears the identity; every other kind
// re-syncs the session and re-fetches the profile.
func (s *Store) HandleEvent(evt domainauth.Event) {
	s.enqueue(func() {
		if evt.Kind == domainauth.EventSignedOut {
			s.clearIdentity()
			s.cur.Err = ""
			s.commit()
			return
		}
		s.startSessionFetch()
	})
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.touch()
	return s.peek()
}

func (s *Store) peek() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// WaitSettled blocks until the store is not loading and returns that state.
func (s *Store) WaitSettled(ctx context.Context) (State, error) {
	s.touch()
	ch := make(chan State, 1)
	if !s.enqueue(func() {
		if !s.cur.Loading {
			ch <- s.cur
			return
		}
		s.waiters = append(s.waiters, ch)
	}) {
		return s.Snapshot(), ErrClosed
	}

	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	case <-s.done:
		return s.Snapshot(), ErrClosed
	}
}

// Subscribe returns a channel that always holds the latest state (older unread states are
// replaced) and a function that ends the subscription. The current state is delivered first.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.touch()
	ch := make(chan State, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.peek()
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.subMu.Unlock()
		})
	}
}

// Close stops the update loop and closes every subscription.
func (s *Store) Close() {
	s.closing.Do(func() {
		s.cancel()
		<-s.done
		s.subMu.Lock()
		for id, c := range s.subs {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	})
}

func (s *Store) subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// IdleSince reports when the store was last read.
func (s *Store) IdleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Store) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// --- loop-only helpers ---

func (s *Store) startSessionFetch() {
	if s.cancelSession != nil {
		s.cancelSession()
	}
	s.sessionSeq++
	seq := s.sessionSeq
	s.sessionInflight = true

	ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
	s.cancelSession = cancel
	s.commit()

	go func() {
		defer cancel()
		sess, err := s.sessions.Session(ctx, s.id)
		s.enqueue(func() { s.applySession(seq, sess, err) })
	}()
}

func (s *Store) applySession(seq uint64, sess *domainauth.Session, err error) {
	if seq != s.sessionSeq {
		return
	}
	s.sessionInflight = false

	switch {
	case err != nil:
		s.logger.WarnContext(s.ctx, "session fetch failed", "error", err)
		s.cur.Err = apperrors.UserMessage(err, "Failed to initialize auth")
		s.commit()
	case sess == nil:
		s.clearIdentity()
		s.cur.Err = ""
		s.commit()
	default:
		sessCopy := *sess
		user := sess.User
		if s.cur.User != nil && s.cur.User.ID != user.ID {
			s.dropProfile()
		}
		s.cur.Session = &sessCopy
		s.cur.User = &user
		s.startProfileFetch(user.ID)
	}
}

func (s *Store) startProfileFetch(userID string) {
	if s.cancelProfile != nil {
		s.cancelProfile()
	}
	s.profileSeq++
	seq := s.profileSeq
	s.profileInflight = true

	ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
	s.cancelProfile = cancel
	s.commit()

	go func() {
		defer cancel()
		p, err := s.profiles.GetByUserID(ctx, userID)
		s.enqueue(func() { s.applyProfile(seq, userID, p, err) })
	}()
}

func (s *Store) applyProfile(seq uint64, userID string, p *domainauth.Profile, err error) {
	if seq != s.profileSeq {
		return
	}
	s.profileInflight = false

	switch {
	case s.cur.User == nil || s.cur.User.ID != userID:
		// identity changed underneath the fetch
	case err != nil:
		s.logger.WarnContext(s.ctx, "profile fetch failed", "user_id", userID, "error", err)
		if apperrors.IsNotFound(err) {
			s.cur.Profile = nil
		}
		s.cur.Err = apperrors.UserMessage(err, "Failed to fetch profile")
	case p == nil || p.UserID != userID:
		s.cur.Profile = nil
		s.cur.Err = "Failed to fetch profile"
	default:
		pc := *p
		s.cur.Profile = &pc
		s.cur.Err = ""
	}
	s.commit()
}

func (s *Store) applySignOut(sessionID string, err error) {
	if err != nil {
		s.logger.WarnContext(s.ctx, "sign out failed", "error", err)
		s.cur.Err = apperrors.UserMessage(err, "Failed to sign out")
		s.commit()
		return
	}
	if s.cur.Session == nil || s.cur.Session.ID == sessionID {
		s.clearIdentity()
	}
	s.cur.Err = ""
	s.commit()
}

func (s *Store) clearIdentity() {
	s.cancelFetches()
	s.sessionSeq++
	s.sessionInflight = false
	s.cur.Session = nil
	s.cur.User = nil
	s.dropProfile()
}

func (s *Store) dropProfile() {
	if s.cancelProfile != nil {
		s.cancelProfile()
		s.cancelProfile = nil
	}
	s.profileSeq++
	s.profileInflight = false
	s.cur.Profile = nil
}

func (s *Store) cancelFetches() {
	if s.cancelSession != nil {
		s.cancelSession()
		s.cancelSession = nil
	}
	if s.cancelProfile != nil {
		s.cancelProfile()
		s.cancelProfile = nil
	}
}

// commit publishes cur to readers, subscribers and settle waiters.
func (s *Store) commit() {
	s.cur.Loading = s.sessionInflight || s.profileInflight
	s.cur.Version++
	st := s.cur

	s.mu.Lock()
	s.published = st
	s.mu.Unlock()

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
	s.subMu.Unlock()

	if !st.Loading && len(s.waiters) > 0 {
		for _, w := range s.waiters {
			w <- st
		}
		s.waiters = nil
	}
}
