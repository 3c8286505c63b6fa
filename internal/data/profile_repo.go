package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/asktourist/marketplace/internal/data/pgxutil"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

// ErrProfileNotFound is returned when no profile row exists for an identity.
var ErrProfileNotFound = apperrors.NotFound("Profile not found")

const profileColumns = `id::text AS id, user_id, name, role, is_vendor, is_approved, social_links,
	company_name, location, profile_image, created_at, updated_at`

const (
	auditActionApproved = "vendor.approved"
	auditActionRejected = "vendor.rejected"
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

// ProfileRepo provides database operations for profiles.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ ports.ProfileRepository = (*ProfileRepo)(nil)

// NewProfileRepo creates a new ProfileRepo with real time provider.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewProfileRepoWithTimeProvider creates a ProfileRepo with a custom time provider (useful for tests).
func NewProfileRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: tp}
}

// GetByUserID retrieves the profile for an identity id.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID string) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	p, err := r.queryOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, r.mapErr(err, "get profile")
	}
	return p, nil
}

// Create inserts the profile row written at sign-up.
func (r *ProfileRepo) Create(ctx context.Context, in ports.CreateProfileInput) (*domainauth.Profile, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	links := in.SocialLinks
	if links == nil {
		links = map[string]string{}
	}
	now := r.timeProvider.Now().UTC()
	p, err := r.queryOne(ctx, `
		INSERT INTO profiles (
			user_id, name, role, is_vendor, is_approved, social_links, company_name, location, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+profileColumns,
		in.UserID,
		strings.TrimSpace(in.Name),
		string(in.Role),
		in.IsVendor,
		in.IsApproved,
		links,
		in.CompanyName,
		in.Location,
		now,
	)
	if err != nil {
		return nil, r.mapErr(err, "create profile")
	}
	return p, nil
}

// EnsureAdmin upserts an approved admin profile for an identity. Existing rows are promoted.
func (r *ProfileRepo) EnsureAdmin(ctx context.Context, userID, name string) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	now := r.timeProvider.Now().UTC()
	p, err := r.queryOne(ctx, `
		INSERT INTO profiles (user_id, name, role, is_vendor, is_approved, created_at, updated_at)
		VALUES ($1, $2, 'admin', FALSE, TRUE, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET role = 'admin', is_vendor = FALSE, is_approved = TRUE, updated_at = EXCLUDED.updated_at
		RETURNING `+profileColumns,
		userID, strings.TrimSpace(name), now,
	)
	if err != nil {
		return nil, r.mapErr(err, "ensure admin profile")
	}
	return p, nil
}

// ListPendingVendors returns unapproved vendor profiles, oldest first.
func (r *ProfileRepo) ListPendingVendors(ctx context.Context, limit int) ([]domainauth.Profile, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	limit = min(limit, maxPendingLimit)

	var out []domainauth.Profile
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+profileColumns+`
			FROM profiles
			WHERE is_vendor AND NOT is_approved
			ORDER BY created_at ASC, user_id ASC
			LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list pending vendors: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// SetApproval flips a vendor's approval flag and records an audit log row in the same transaction.
func (r *ProfileRepo) SetApproval(ctx context.Context, in ports.SetApprovalInput) (*domainauth.Profile, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	action := auditActionRejected
	if in.Approved {
		action = auditActionApproved
	}
	now := r.timeProvider.Now().UTC()

	var out domainauth.Profile
	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE profiles SET is_approved = $2, updated_at = $3
			WHERE user_id = $1 AND is_vendor
			RETURNING `+profileColumns, in.UserID, in.Approved, now)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO audit_logs (actor, action, target_type, target_id, details, created_at)
			VALUES ($1, $2, 'profile', $3, $4, $5)`,
			in.Actor, action, in.UserID, map[string]any{"is_approved": in.Approved}, now)
		return err
	})
	if err != nil {
		return nil, r.mapErr(err, "set vendor approval")
	}
	return &out, nil
}

func (r *ProfileRepo) queryOne(ctx context.Context, query string, args ...any) (*domainauth.Profile, error) {
	var out domainauth.Profile
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ProfileRepo) mapErr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProfileNotFound
	}
	mapped := apperrors.MapDBError(err)
	var appErr *apperrors.AppError
	if errors.As(mapped, &appErr) {
		return mapped
	}
	return fmt.Errorf("%s: %w", op, mapped)
}
