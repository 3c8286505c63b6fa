// Package gotrue adapts the hosted Supabase auth REST API (GoTrue) to ports.IdentityProvider.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/jmespath-community/go-jmespath"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultNameClaim = "user_metadata.name || email"
	maxErrorBody     = 64 << 10
)

// Config configures a Client.
type Config struct {
	URL            string // project URL, e.g. https://xyz.supabase.co
	AnonKey        string
	ServiceRoleKey string // required for DeleteUser

	// JWKSURL, when set, is used to verify the signature of every access token the API issues.
	JWKSURL string

	// NameClaim is a JMESPath expression evaluated against the user object to derive a display name.
	NameClaim string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements ports.IdentityProvider against the GoTrue REST API.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	nameClaim      string
	http           *http.Client
	keySet         *gooidc.RemoteKeySet
	logger         *slog.Logger
}

var _ ports.IdentityProvider = (*Client)(nil)

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("gotrue: URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("gotrue: invalid URL: %w", err)
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("gotrue: anon key is required")
	}

	nameClaim := cfg.NameClaim
	if nameClaim == "" {
		nameClaim = defaultNameClaim
	}
	if _, err := jmespath.Compile(nameClaim); err != nil {
		return nil, fmt.Errorf("gotrue: invalid name claim expression: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:        base + "/auth/v1",
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		nameClaim:      nameClaim,
		http:           httpClient,
		logger:         logger.With("component", "gotrue"),
	}
	if cfg.JWKSURL != "" {
		ctx := gooidc.ClientContext(context.Background(), httpClient)
		c.keySet = gooidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	}
	return c, nil
}

// tokenResponse is the session payload returned by /signup and /token.
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	User         json.RawMessage `json:"user"`
}

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) SignUp(ctx context.Context, in ports.SignUpInput) (domainauth.Identity, error) {
	body := map[string]any{"email": in.Email, "password": in.Password}
	if len(in.Metadata) > 0 {
		body["data"] = in.Metadata
	}

	raw, err := c.do(ctx, http.MethodPost, "/signup", body, c.anonKey)
	if err != nil {
		return domainauth.Identity{}, err
	}

	// With email confirmation enabled the API answers with the bare user and no session.
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return domainauth.Identity{}, fmt.Errorf("decode signup response: %w", err)
	}
	if tr.AccessToken == "" {
		tr.User = raw
	}
	return c.identity(ctx, tr)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (domainauth.Identity, error) {
	raw, err := c.do(ctx, http.MethodPost, "/token?grant_type=password",
		map[string]string{"email": email, "password": password}, c.anonKey)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return c.decodeSession(ctx, raw)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (domainauth.Identity, error) {
	raw, err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token",
		map[string]string{"refresh_token": refreshToken}, c.anonKey)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return c.decodeSession(ctx, raw)
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, accessToken)
	return err
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if c.serviceRoleKey == "" {
		return apperrors.New(apperrors.ErrCodeInternal, "service role key is not configured")
	}
	_, err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), nil, c.serviceRoleKey)
	return err
}

func (c *Client) decodeSession(ctx context.Context, raw []byte) (domainauth.Identity, error) {
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return domainauth.Identity{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return domainauth.Identity{}, apperrors.New(apperrors.ErrCodeUnavailable, "Authentication service returned no session")
	}
	return c.identity(ctx, tr)
}

func (c *Client) identity(ctx context.Context, tr tokenResponse) (domainauth.Identity, error) {
	if tr.AccessToken != "" && c.keySet != nil {
		if _, err := c.keySet.VerifySignature(ctx, tr.AccessToken); err != nil {
			return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "Session token could not be verified")
		}
	}

	var user map[string]any
	if len(tr.User) > 0 {
		if err := json.Unmarshal(tr.User, &user); err != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user: %w", err)
		}
	}
	id, _ := user["id"].(string)
	if id == "" {
		return domainauth.Identity{}, apperrors.New(apperrors.ErrCodeUnavailable, "Authentication service returned no user")
	}
	email, _ := user["email"].(string)

	expiresAt := time.Now().Add(time.Hour)
	switch {
	case tr.ExpiresAt > 0:
		expiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return domainauth.Identity{
		UserID:       id,
		Email:        email,
		Name:         c.displayName(user),
		ExpiresAt:    expiresAt,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}, nil
}

func (c *Client) displayName(user map[string]any) string {
	v, err := jmespath.Search(c.nameClaim, user)
	if err != nil {
		c.logger.Debug("name claim evaluation failed", "error", err)
		return ""
	}
	s, _ := v.(string)
	return s
}

func (c *Client) do(ctx context.Context, method, path string, body any, bearer string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.Wrap(ctxErr, apperrors.ErrCodeTimeout, "Authentication service timed out")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Authentication service is unavailable")
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Authentication service is unavailable")
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, c.mapError(method, path, resp.StatusCode, raw)
}

func (c *Client) mapError(method, path string, status int, raw []byte) error {
	var ae apiError
	_ = json.Unmarshal(raw, &ae)
	msg := ae.text()
	cause := fmt.Errorf("gotrue %s %s: status %d: %s", method, path, status, msg)

	c.logger.Debug("gotrue request failed", "method", method, "path", path, "status", status, "error_code", ae.ErrorCode)

	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.Wrap(cause, apperrors.ErrCodeRateLimited, orDefault(msg, "Too many requests. Please try again later."))
	case ae.ErrorCode == "user_already_exists" || ae.ErrorCode == "email_exists" ||
		strings.Contains(strings.ToLower(msg), "already registered"):
		return apperrors.Wrap(cause, apperrors.ErrCodeConflict, orDefault(msg, "User already registered"))
	case status == http.StatusNotFound:
		return apperrors.Wrap(cause, apperrors.ErrCodeNotFound, orDefault(msg, "User not found"))
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		(status == http.StatusBadRequest && strings.HasPrefix(path, "/token")):
		return apperrors.Wrap(cause, apperrors.ErrCodeUnauthorized, orDefault(msg, "Invalid login credentials"))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.Wrap(cause, apperrors.ErrCodeValidation, orDefault(msg, "Invalid request"))
	default:
		return apperrors.Wrap(cause, apperrors.ErrCodeUnavailable, "Authentication service is unavailable")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
