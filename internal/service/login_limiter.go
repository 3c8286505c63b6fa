package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/asktourist/marketplace/internal/errors"
)

// ErrRateLimited is returned when an email has exhausted its login attempts.
var ErrRateLimited = apperrors.New(apperrors.ErrCodeRateLimited,
	"Too many login attempts. Please wait a moment and try again.")

const limiterIdleTTL = 15 * time.Minute

// LoginLimiter throttles login attempts per normalised email with a token bucket each.
type LoginLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
	now     func() time.Time
	swept   time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows perMinute sustained attempts per email with the given burst.
func NewLoginLimiter(perMinute float64, burst int) *LoginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow reports whether another attempt for email may proceed now.
func (l *LoginLimiter) Allow(email string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	e, ok := l.entries[email]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[email] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

// sweep drops buckets idle for longer than limiterIdleTTL, at most once per TTL.
func (l *LoginLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < limiterIdleTTL {
		return
	}
	l.swept = now
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.entries, k)
		}
	}
}
