package devauth

// Package devauth provides an in-memory email/password identity provider for local development
// and tests (AUTH_MODE=mock).

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

// Config controls the dev provider.
type Config struct {
	SessionDuration time.Duration // default 8h when zero
	BcryptCost      int           // default bcrypt.MinCost; dev only
}

type account struct {
	id           string
	email        string
	name         string
	passwordHash []byte
}

// Provider implements ports.IdentityProvider in memory. Passwords are bcrypt hashed.
type Provider struct {
	sessionDuration time.Duration
	cost            int

	mu       sync.Mutex
	accounts map[string]*account // by lower-cased email
	access   map[string]string   // access token -> user id
	refresh  map[string]string   // refresh token -> user id
}

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) *Provider {
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.MinCost
	}
	return &Provider{
		sessionDuration: dur,
		cost:            cost,
		accounts:        make(map[string]*account),
		access:          make(map[string]string),
		refresh:         make(map[string]string),
	}
}

var _ ports.IdentityProvider = (*Provider)(nil)

func (p *Provider) SignUp(_ context.Context, in ports.SignUpInput) (domainauth.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return domainauth.Identity{}, apperrors.Validation("Email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	name, _ := in.Metadata["name"].(string)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[email]; exists {
		return domainauth.Identity{}, apperrors.Conflict("User already registered")
	}
	acc := &account{id: uuid.NewString(), email: email, name: name, passwordHash: hash}
	p.accounts[email] = acc
	return p.issueLocked(acc)
}

func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (domainauth.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	acc, ok := p.accounts[email]
	p.mu.Unlock()
	if !ok {
		return domainauth.Identity{}, apperrors.Unauthorized("Invalid login credentials")
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return domainauth.Identity{}, apperrors.Unauthorized("Invalid login credentials")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueLocked(acc)
}

func (p *Provider) Refresh(_ context.Context, refreshToken string) (domainauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.refresh[refreshToken]
	if !ok {
		return domainauth.Identity{}, apperrors.Unauthorized("Invalid refresh token")
	}
	delete(p.refresh, refreshToken)
	acc := p.byIDLocked(userID)
	if acc == nil {
		return domainauth.Identity{}, apperrors.Unauthorized("User not found")
	}
	return p.issueLocked(acc)
}

func (p *Provider) SignOut(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.access[accessToken]
	if !ok {
		return nil
	}
	delete(p.access, accessToken)
	for tok, id := range p.refresh {
		if id == userID {
			delete(p.refresh, tok)
		}
	}
	return nil
}

func (p *Provider) DeleteUser(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc := p.byIDLocked(userID)
	if acc == nil {
		return apperrors.NotFound("User not found")
	}
	delete(p.accounts, acc.email)
	for tok, id := range p.access {
		if id == userID {
			delete(p.access, tok)
		}
	}
	for tok, id := range p.refresh {
		if id == userID {
			delete(p.refresh, tok)
		}
	}
	return nil
}

// Seed creates an account if it does not exist yet and returns its identity. Seeded accounts get
// an id derived from the email, so they keep their profile rows across restarts.
func (p *Provider) Seed(ctx context.Context, email, password, name string) (domainauth.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domainauth.Identity{}, apperrors.Validation("Email and password are required")
	}

	p.mu.Lock()
	_, exists := p.accounts[email]
	p.mu.Unlock()
	if exists {
		return p.SignInWithPassword(ctx, email, password)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[email]
	if !ok {
		acc = &account{id: SeedUserID(email), email: email, name: name, passwordHash: hash}
		p.accounts[email] = acc
	}
	return p.issueLocked(acc)
}

// SeedUserID is the stable user id Seed assigns to email.
func SeedUserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("devauth:"+strings.ToLower(strings.TrimSpace(email)))).String()
}

func (p *Provider) byIDLocked(userID string) *account {
	for _, acc := range p.accounts {
		if acc.id == userID {
			return acc
		}
	}
	return nil
}

func (p *Provider) issueLocked(acc *account) (domainauth.Identity, error) {
	access, err := randomString(32)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := randomString(32)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("generate refresh token: %w", err)
	}
	p.access[access] = acc.id
	p.refresh[refresh] = acc.id
	return domainauth.Identity{
		UserID:       acc.id,
		Email:        acc.email,
		Name:         acc.name,
		ExpiresAt:    time.Now().Add(p.sessionDuration),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
