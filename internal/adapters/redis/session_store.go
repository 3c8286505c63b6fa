package redis

// Package redis provides Redis-based adapters for the marketplace: sessions, auth event
// fan-out and the orphaned-identity repair queue.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
)

// ErrNotFound is returned when a session is not found or has lapsed.
var ErrNotFound = apperrors.NotFound("session not found")

// SessionStore is a Redis-based session store.
// A session record lives until its refresh expiry; the access and refresh token indices each
// expire with the token they point from.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, "")
}

// NewSessionStoreWithPrefix creates a Redis session store whose keys all start with prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *SessionStore) sessionKey(id string) string    { return s.prefix + "session:" + id }
func (s *SessionStore) accessKey(token string) string  { return s.prefix + "session:access:" + token }
func (s *SessionStore) refreshKey(token string) string { return s.prefix + "session:refresh:" + token }

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	now := s.now()
	recordTTL := sess.RefreshExpiresAt.Sub(now)
	if accessTTL := sess.ExpiresAt.Sub(now); accessTTL > recordTTL {
		recordTTL = accessTTL
	}
	if recordTTL <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// drop indices of the tokens this save replaces
	prev, prevErr := s.Get(ctx, sess.ID)
	if prevErr != nil && !errors.Is(prevErr, ErrNotFound) {
		return prevErr
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if prevErr == nil {
			if prev.AccessToken != "" && prev.AccessToken != sess.AccessToken {
				pipe.Del(ctx, s.accessKey(prev.AccessToken))
			}
			if prev.RefreshToken != "" && prev.RefreshToken != sess.RefreshToken {
				pipe.Del(ctx, s.refreshKey(prev.RefreshToken))
			}
		}
		pipe.Set(ctx, s.sessionKey(sess.ID), data, recordTTL)
		if ttl := sess.ExpiresAt.Sub(now); sess.AccessToken != "" && ttl > 0 {
			pipe.Set(ctx, s.accessKey(sess.AccessToken), sess.ID, ttl)
		}
		if ttl := sess.RefreshExpiresAt.Sub(now); sess.RefreshToken != "" && ttl > 0 {
			pipe.Set(ctx, s.refreshKey(sess.RefreshToken), sess.ID, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Get returns the session by id, including sessions whose access token has lapsed but which can
// still be refreshed.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	now := s.now()
	if now.After(sess.ExpiresAt) && now.After(sess.RefreshExpiresAt) {
		if deleteErr := s.Delete(ctx, sess); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

// GetByAccessToken resolves a live access token.
func (s *SessionStore) GetByAccessToken(ctx context.Context, token string) (domainauth.Session, error) {
	sess, err := s.getByIndex(ctx, s.accessKey, token)
	if err != nil {
		return sess, err
	}
	if sess.AccessToken != token || sess.Expired(s.now()) {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

// GetByRefreshToken resolves a live refresh token.
func (s *SessionStore) GetByRefreshToken(ctx context.Context, token string) (domainauth.Session, error) {
	sess, err := s.getByIndex(ctx, s.refreshKey, token)
	if err != nil {
		return sess, err
	}
	if sess.RefreshToken != token || !s.now().Before(sess.RefreshExpiresAt) {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) getByIndex(ctx context.Context, key func(string) string, token string) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, ErrNotFound
	}
	id, err := s.client.Get(ctx, key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get index: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the session record and both token indices.
func (s *SessionStore) Delete(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return nil // Nothing to delete
	}

	keys := []string{s.sessionKey(sess.ID)}
	if sess.AccessToken != "" {
		keys = append(keys, s.accessKey(sess.AccessToken))
	}
	if sess.RefreshToken != "" {
		keys = append(keys, s.refreshKey(sess.RefreshToken))
	}
	return s.client.Del(ctx, keys...).Err()
}
