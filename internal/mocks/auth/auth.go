package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider  = (*FakeIdentityProvider)(nil)
	_ ports.SSOProvider       = (*MockSSOProvider)(nil)
	_ ports.SessionStore      = (*MemorySessionStore)(nil)
	_ ports.ProfileRepository = (*MemoryProfileRepo)(nil)
	_ ports.AuthEventBus      = (*MemoryEventBus)(nil)
	_ ports.OrphanQueue       = (*MemoryOrphanQueue)(nil)
	_ ports.RoleMapper        = (*StaticRoleMapper)(nil)
)

// ErrNotFound is returned by fakes when an entity is not present.
var ErrNotFound = apperrors.NotFound("not found")

type fakeAccount struct {
	identity domainauth.Identity
	password string
}

// FakeIdentityProvider is an in-memory email/password identity service.
// Any of the *Err fields, when set, is returned by the matching call.
type FakeIdentityProvider struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount // by email
	next     int

	SignUpErr  error
	SignInErr  error
	RefreshErr error
	SignOutErr error
	DeleteErr  error

	SignedOut []string
	Deleted   []string
}

// NewFakeIdentityProvider returns an empty provider.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{accounts: make(map[string]*fakeAccount)}
}

func (f *FakeIdentityProvider) SignUp(_ context.Context, in ports.SignUpInput) (domainauth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignUpErr != nil {
		return domainauth.Identity{}, f.SignUpErr
	}
	if _, exists := f.accounts[in.Email]; exists {
		return domainauth.Identity{}, apperrors.Conflict("User already registered")
	}
	f.next++
	name, _ := in.Metadata["name"].(string)
	id := domainauth.Identity{
		UserID:       fmt.Sprintf("user-%d", f.next),
		Email:        in.Email,
		Name:         name,
		ExpiresAt:    time.Now().Add(time.Hour),
		AccessToken:  fmt.Sprintf("provider-access-%d", f.next),
		RefreshToken: fmt.Sprintf("provider-refresh-%d", f.next),
	}
	f.accounts[in.Email] = &fakeAccount{identity: id, password: in.Password}
	return id, nil
}

func (f *FakeIdentityProvider) SignInWithPassword(_ context.Context, email, password string) (domainauth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignInErr != nil {
		return domainauth.Identity{}, f.SignInErr
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		return domainauth.Identity{}, apperrors.Unauthorized("Invalid login credentials")
	}
	id := acc.identity
	id.ExpiresAt = time.Now().Add(time.Hour)
	return id, nil
}

func (f *FakeIdentityProvider) Refresh(_ context.Context, refreshToken string) (domainauth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefreshErr != nil {
		return domainauth.Identity{}, f.RefreshErr
	}
	for _, acc := range f.accounts {
		if acc.identity.RefreshToken == refreshToken {
			id := acc.identity
			id.ExpiresAt = time.Now().Add(time.Hour)
			return id, nil
		}
	}
	return domainauth.Identity{}, apperrors.Unauthorized("Invalid refresh token")
}

func (f *FakeIdentityProvider) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.SignedOut = append(f.SignedOut, accessToken)
	return nil
}

func (f *FakeIdentityProvider) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for email, acc := range f.accounts {
		if acc.identity.UserID == userID {
			delete(f.accounts, email)
		}
	}
	f.Deleted = append(f.Deleted, userID)
	return nil
}

// Has reports whether an identity exists for email.
func (f *FakeIdentityProvider) Has(email string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[email]
	return ok
}

// MockSSOProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockSSOProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockSSOProvider creates a MockSSOProvider with sensible defaults.
func NewMockSSOProvider() *MockSSOProvider {
	return &MockSSOProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			UserID:       "sso-admin-1",
			Name:         "Mock Admin",
			Email:        "admin@example.com",
			Groups:       []string{"marketplace-admins"},
			RefreshToken: "sso-refresh",
		},
	}
}

func (m *MockSSOProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	return authURL, fmt.Sprintf("state-%d", n), fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockSSOProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

func (m *MockSSOProvider) Refresh(ctx context.Context, refreshToken string) (domainauth.Identity, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	if refreshToken == "" {
		return domainauth.Identity{}, errors.New("missing refresh token")
	}
	user := m.DefaultUser
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) GetByAccessToken(_ context.Context, token string) (domainauth.Session, error) {
	return m.find(func(s domainauth.Session) bool { return token != "" && s.AccessToken == token })
}

func (m *MemorySessionStore) GetByRefreshToken(_ context.Context, token string) (domainauth.Session, error) {
	return m.find(func(s domainauth.Session) bool { return token != "" && s.RefreshToken == token })
}

func (m *MemorySessionStore) Delete(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess.ID)
	return nil
}

// Len reports the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) find(match func(domainauth.Session) bool) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if match(s) {
			return s, nil
		}
	}
	return domainauth.Session{}, ErrNotFound
}

// MemoryProfileRepo is an in-memory profile table.
type MemoryProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]domainauth.Profile // by user id
	next     int

	CreateErr error
	GetErr    error
}

// NewMemoryProfileRepo returns an empty repository.
func NewMemoryProfileRepo() *MemoryProfileRepo {
	return &MemoryProfileRepo{profiles: make(map[string]domainauth.Profile)}
}

func (m *MemoryProfileRepo) GetByUserID(_ context.Context, userID string) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperrors.NotFound("profile not found")
	}
	return &p, nil
}

func (m *MemoryProfileRepo) Create(_ context.Context, in ports.CreateProfileInput) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, exists := m.profiles[in.UserID]; exists {
		return nil, apperrors.Conflict("A profile already exists for this account.")
	}
	m.next++
	now := time.Now().UTC()
	p := domainauth.Profile{
		ID:          fmt.Sprintf("profile-%d", m.next),
		UserID:      in.UserID,
		Name:        in.Name,
		Role:        in.Role,
		IsVendor:    in.IsVendor,
		IsApproved:  in.IsApproved,
		SocialLinks: in.SocialLinks,
		CompanyName: in.CompanyName,
		Location:    in.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.profiles[in.UserID] = p
	return &p, nil
}

func (m *MemoryProfileRepo) EnsureAdmin(ctx context.Context, userID, name string) (*domainauth.Profile, error) {
	m.mu.Lock()
	if p, ok := m.profiles[userID]; ok {
		p.Role = domainauth.RoleAdmin
		p.IsApproved = true
		p.UpdatedAt = time.Now().UTC()
		m.profiles[userID] = p
		m.mu.Unlock()
		return &p, nil
	}
	m.mu.Unlock()
	return m.Create(ctx, ports.CreateProfileInput{UserID: userID, Name: name, Role: domainauth.RoleAdmin, IsApproved: true})
}

func (m *MemoryProfileRepo) ListPendingVendors(_ context.Context, limit int) ([]domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domainauth.Profile
	for _, p := range m.profiles {
		if p.NeedsApproval() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryProfileRepo) SetApproval(_ context.Context, in ports.SetApprovalInput) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[in.UserID]
	if !ok || !p.IsVendor {
		return nil, apperrors.NotFound("vendor profile not found")
	}
	p.IsApproved = in.Approved
	p.UpdatedAt = time.Now().UTC()
	m.profiles[in.UserID] = p
	return &p, nil
}

// Put stores p directly, bypassing validation.
func (m *MemoryProfileRepo) Put(p domainauth.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

// MemoryEventBus delivers published events to every live subscriber in-process.
type MemoryEventBus struct {
	mu        sync.Mutex
	subs      map[int]chan domainauth.Event
	next      int
	Published []domainauth.Event
}

// NewMemoryEventBus returns an empty bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subs: make(map[int]chan domainauth.Event)}
}

func (b *MemoryEventBus) Publish(_ context.Context, evt domainauth.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Published = append(b.Published, evt)
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(_ context.Context) (<-chan domainauth.Event, func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan domainauth.Event, 16)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
		return nil
	}, nil
}

// Kinds returns the kinds of every published event, in order.
func (b *MemoryEventBus) Kinds() []domainauth.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domainauth.EventKind, 0, len(b.Published))
	for _, e := range b.Published {
		out = append(out, e.Kind)
	}
	return out
}

// MemoryOrphanQueue is a FIFO orphan queue.
type MemoryOrphanQueue struct {
	mu    sync.Mutex
	items []ports.Orphan

	EnqueueErr error
}

func (q *MemoryOrphanQueue) Enqueue(_ context.Context, o ports.Orphan) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	q.items = append(q.items, o)
	return nil
}

func (q *MemoryOrphanQueue) Dequeue(_ context.Context, n int) ([]ports.Orphan, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := append([]ports.Orphan(nil), q.items[:n]...)
	q.items = q.items[n:]
	return out, nil
}

func (q *MemoryOrphanQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// StaticRoleMapper grants admin to members of AdminGroup and denies everyone else.
type StaticRoleMapper struct {
	AdminGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	return ""
}
