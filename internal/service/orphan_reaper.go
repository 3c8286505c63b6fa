package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asktourist/marketplace/config"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

// OrphanReaperServiceOptions groups dependencies for OrphanReaperService.
type OrphanReaperServiceOptions struct {
	Queue    ports.OrphanQueue         // Required
	Identity ports.IdentityProvider    // Required: deletes the orphaned identities
	Config   config.OrphanReaperConfig // Required
	Logger   *slog.Logger              // Optional
}

// OrphanReaperService deletes identities whose sign-up left them without a profile.
//
// Each pass drains one batch from the queue. Failed deletions go back on the queue with their
// attempt count bumped and are dropped, with an error log, once they reach MaxAttempts.
type OrphanReaperService struct {
	queue    ports.OrphanQueue
	identity ports.IdentityProvider
	config   config.OrphanReaperConfig
	logger   *slog.Logger
}

// ReapResult summarises one pass.
type ReapResult struct {
	Deleted  int
	Requeued int
	Dropped  int
}

// NewOrphanReaperService constructs a new OrphanReaperService.
func NewOrphanReaperService(opts OrphanReaperServiceOptions) (*OrphanReaperService, error) {
	if opts.Queue == nil {
		return nil, errors.New("OrphanQueue is required")
	}
	if opts.Identity == nil {
		return nil, errors.New("IdentityProvider is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orphan_reaper")
	logger.Debug("OrphanReaperService initialized",
		"interval", cfg.Interval,
		"batch_size", cfg.BatchSize,
		"max_attempts", cfg.MaxAttempts,
	)

	return &OrphanReaperService{
		queue:    opts.Queue,
		identity: opts.Identity,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Run drains the queue at the configured interval until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *OrphanReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting orphan reaper", "interval", s.config.Interval)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !isContextCancellation(err) {
			s.logger.ErrorContext(ctx, "orphan reaper pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "orphan reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitWithJitter delays startup by up to 10% of the interval so replicas do not poll in step.
func (s *OrphanReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// RunOnce handles a single batch.
func (s *OrphanReaperService) RunOnce(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	batch, err := s.queue.Dequeue(ctx, s.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("dequeue orphans: %w", err)
	}

	var errs []error
	for _, o := range batch {
		delErr := s.identity.DeleteUser(ctx, o.UserID)
		if delErr == nil || apperrors.IsNotFound(delErr) {
			res.Deleted++
			s.logger.InfoContext(ctx, "orphaned identity deleted", "user_id", o.UserID, "attempts", o.Attempts)
			continue
		}

		// Shutdown interrupted the call; the identity service never answered, so no attempt is spent.
		interrupted := ctx.Err() != nil && isContextCancellation(delErr)
		if !interrupted {
			o.Attempts++
		}
		if o.Attempts >= s.config.MaxAttempts {
			res.Dropped++
			s.logger.ErrorContext(ctx, "giving up on orphaned identity",
				"user_id", o.UserID, "email", o.Email, "attempts", o.Attempts, "error", delErr)
			continue
		}
		if qErr := s.queue.Enqueue(context.WithoutCancel(ctx), o); qErr != nil {
			errs = append(errs, fmt.Errorf("requeue %s: %w", o.UserID, qErr))
			continue
		}
		res.Requeued++
		s.logger.WarnContext(ctx, "orphaned identity requeued",
			"user_id", o.UserID, "attempts", o.Attempts, "error", delErr)
	}

	if len(batch) > 0 {
		s.logger.InfoContext(ctx, "orphan reaper pass complete",
			"deleted", res.Deleted, "requeued", res.Requeued, "dropped", res.Dropped)
	}
	return res, errors.Join(errs...)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
