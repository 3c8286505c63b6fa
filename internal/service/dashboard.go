package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/asktourist/marketplace/internal/ports"
)

// DashboardService serves dashboard counters.
type DashboardService struct {
	repo ports.DashboardRepository
}

// NewDashboardService constructs a new DashboardService.
func NewDashboardService(repo ports.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// VendorStats returns the package, booking, review and inquiry counts for a vendor.
func (s *DashboardService) VendorStats(ctx context.Context, vendorUserID string) (ports.VendorStats, error) {
	if vendorUserID == "" {
		return ports.VendorStats{}, errors.New("vendor user id is required")
	}
	stats, err := s.repo.VendorStats(ctx, vendorUserID)
	if err != nil {
		return ports.VendorStats{}, fmt.Errorf("vendor stats: %w", err)
	}
	return stats, nil
}
