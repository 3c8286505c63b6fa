package data

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

// DashboardRepo reads the aggregate counters shown on dashboards.
type DashboardRepo struct {
	DB *sql.DB
}

var _ ports.DashboardRepository = (*DashboardRepo)(nil)

// NewDashboardRepo creates a new DashboardRepo.
func NewDashboardRepo(db *sql.DB) *DashboardRepo {
	return &DashboardRepo{DB: db}
}

const (
	countPackagesQuery = `SELECT count(*) FROM packages WHERE vendor_id = $1`
	countBookingsQuery = `
		SELECT count(*) FROM bookings b
		JOIN packages p ON p.id = b.package_id
		WHERE p.vendor_id = $1`
	countReviewsQuery = `
		SELECT count(*) FROM reviews r
		JOIN packages p ON p.id = r.package_id
		WHERE p.vendor_id = $1`
	countInquiriesQuery = `
		SELECT count(*) FROM inquiries i
		JOIN packages p ON p.id = i.package_id
		WHERE p.vendor_id = $1`
)

// VendorStats counts a vendor's packages and the bookings, reviews and inquiries against them.
// The four counts run concurrently on separate pooled connections.
func (r *DashboardRepo) VendorStats(ctx context.Context, vendorUserID string) (ports.VendorStats, error) {
	var stats ports.VendorStats
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int64, query string) func() error {
		return func() error {
			return r.DB.QueryRowContext(gctx, query, vendorUserID).Scan(dst)
		}
	}
	g.Go(count(&stats.Packages, countPackagesQuery))
	g.Go(count(&stats.Bookings, countBookingsQuery))
	g.Go(count(&stats.Reviews, countReviewsQuery))
	g.Go(count(&stats.Inquiries, countInquiriesQuery))

	if err := g.Wait(); err != nil {
		return ports.VendorStats{}, fmt.Errorf("vendor stats: %w", apperrors.MapDBError(err))
	}
	return stats, nil
}
