// Package devseed creates the development accounts used with the in-process identity service.
package devseed

import (
	"context"
	"fmt"
	"log/slog"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

// Seeder creates (or re-opens) an identity with a known password.
type Seeder interface {
	Seed(ctx context.Context, email, password, name string) (domainauth.Identity, error)
}

// Account describes one seeded identity and its profile.
type Account struct {
	Email       string
	Password    string
	Name        string
	Role        domainauth.Role
	Approved    bool
	CompanyName string
	Location    string
	SocialLinks map[string]string
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Identities Seeder
	Profiles   ports.ProfileRepository
}

// DemoAccounts returns a customer, an approved vendor and a vendor awaiting approval, all sharing
// password.
func DemoAccounts(password string) []Account {
	return []Account{
		{
			Email:    "traveller@example.com",
			Password: password,
			Name:     "Maya Traveller",
			Role:     domainauth.RoleCustomer,
			Approved: true,
		},
		{
			Email:       "vendor@example.com",
			Password:    password,
			Name:        "Ravi Guide",
			Role:        domainauth.RoleVendor,
			Approved:    true,
			CompanyName: "Himalayan Trails",
			Location:    "Pokhara",
			SocialLinks: map[string]string{"website": "https://trails.example.com"},
		},
		{
			Email:       "pending-vendor@example.com",
			Password:    password,
			Name:        "Lena Host",
			Role:        domainauth.RoleVendor,
			CompanyName: "Coastal Stays",
			Location:    "Lisbon",
		},
	}
}

// Run seeds every account. Existing profiles are left as they are, so approvals made through the
// admin dashboard survive restarts.
func Run(ctx context.Context, svcs Services, accounts []Account, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	failures := 0
	for _, acc := range accounts {
		created, err := seedAccount(ctx, svcs, acc)
		if err != nil {
			failures++
			logger.WarnContext(ctx, "failed to seed account", "email", acc.Email, "error", err)
			continue
		}
		if created {
			logger.InfoContext(ctx, "seeded account", "email", acc.Email, "role", acc.Role)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedAccount(ctx context.Context, svcs Services, acc Account) (bool, error) {
	id, err := svcs.Identities.Seed(ctx, acc.Email, acc.Password, acc.Name)
	if err != nil {
		return false, fmt.Errorf("seed identity: %w", err)
	}

	if acc.Role == domainauth.RoleAdmin {
		if _, err := svcs.Profiles.EnsureAdmin(ctx, id.UserID, acc.Name); err != nil {
			return false, fmt.Errorf("ensure admin profile: %w", err)
		}
		return true, nil
	}

	if _, err := svcs.Profiles.GetByUserID(ctx, id.UserID); err == nil {
		return false, nil
	} else if !apperrors.IsNotFound(err) {
		return false, fmt.Errorf("load profile: %w", err)
	}

	in := ports.CreateProfileInput{
		UserID:      id.UserID,
		Name:        acc.Name,
		Role:        acc.Role,
		IsVendor:    acc.Role == domainauth.RoleVendor,
		IsApproved:  acc.Approved,
		SocialLinks: acc.SocialLinks,
	}
	if acc.CompanyName != "" {
		in.CompanyName = &acc.CompanyName
	}
	if acc.Location != "" {
		in.Location = &acc.Location
	}
	if _, err := svcs.Profiles.Create(ctx, in); err != nil && !apperrors.IsConflict(err) {
		return false, fmt.Errorf("create profile: %w", err)
	}
	return true, nil
}
