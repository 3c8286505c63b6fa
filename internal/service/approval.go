package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/ports"
)

// ApprovalServiceOptions groups dependencies for ApprovalService.
type ApprovalServiceOptions struct {
	Profiles ports.ProfileRepository // Required
	Events   ports.AuthEventBus      // Optional: USER_UPDATED notifications
	Logger   *slog.Logger            // Optional
}

// ApprovalService is the admin workflow that approves or rejects vendor accounts.
type ApprovalService struct {
	profiles ports.ProfileRepository
	events   ports.AuthEventBus
	logger   *slog.Logger
}

// NewApprovalService constructs a new ApprovalService.
func NewApprovalService(opts ApprovalServiceOptions) *ApprovalService {
	if opts.Profiles == nil {
		//nolint:forbidigo // wiring error, caught at startup
		panic("ApprovalService requires Profiles")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalService{
		profiles: opts.Profiles,
		events:   opts.Events,
		logger:   logger.With("component", "approval_service"),
	}
}

// ListPending returns vendors awaiting approval, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, limit int) ([]domainauth.Profile, error) {
	out, err := s.profiles.ListPendingVendors(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending vendors: %w", err)
	}
	return out, nil
}

// Approve marks a vendor approved.
func (s *ApprovalService) Approve(ctx context.Context, vendorUserID, actor string) (*domainauth.Profile, error) {
	return s.set(ctx, vendorUserID, actor, true)
}

// Reject clears a vendor's approval. The vendor keeps their account and lands on the pending page.
func (s *ApprovalService) Reject(ctx context.Context, vendorUserID, actor string) (*domainauth.Profile, error) {
	return s.set(ctx, vendorUserID, actor, false)
}

func (s *ApprovalService) set(ctx context.Context, vendorUserID, actor string, approved bool) (*domainauth.Profile, error) {
	vendorUserID = strings.TrimSpace(vendorUserID)
	if vendorUserID == "" {
		return nil, errors.New("vendor user id is required")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, errors.New("actor is required")
	}

	p, err := s.profiles.SetApproval(ctx, ports.SetApprovalInput{UserID: vendorUserID, Approved: approved, Actor: actor})
	if err != nil {
		return nil, fmt.Errorf("set vendor approval: %w", err)
	}
	s.logger.InfoContext(ctx, "vendor approval changed",
		"vendor_user_id", vendorUserID, "approved", approved, "actor", actor)

	// live state stores for this vendor re-read the profile
	if s.events != nil {
		evt := domainauth.Event{Kind: domainauth.EventUserUpdated, UserID: vendorUserID, At: time.Now().UTC()}
		if pubErr := s.events.Publish(ctx, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "failed to publish user update", "vendor_user_id", vendorUserID, "error", pubErr)
		}
	}
	return p, nil
}
