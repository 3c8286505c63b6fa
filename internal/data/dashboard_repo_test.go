package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/ports"
	"github.com/asktourist/marketplace/internal/testutil"
)

func insertPackage(t *testing.T, db *sql.DB, vendorID, title string) string {
	t.Helper()
	var id string
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO packages (vendor_id, title, price_cents) VALUES ($1, $2, 125000) RETURNING id::text`,
		vendorID, title,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestDashboardRepo_VendorStats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		profiles := NewProfileRepo(db)
		vendor := createVendor(t, profiles, "stats")
		other := createVendor(t, profiles, "other")
		customer, err := profiles.Create(ctx, ports.CreateProfileInput{
			UserID: uuid.NewString(), Name: "Traveller", Role: domainauth.RoleCustomer, IsApproved: true,
		})
		require.NoError(t, err)

		trek := insertPackage(t, db, vendor.UserID, "Annapurna Trek")
		insertPackage(t, db, vendor.UserID, "Pokhara Lakeside")
		insertPackage(t, db, other.UserID, "Elsewhere")

		_, err = db.ExecContext(ctx,
			`INSERT INTO bookings (package_id, customer_id, travel_date) VALUES ($1, $2, DATE '2025-10-01')`,
			trek, customer.UserID)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx,
			`INSERT INTO reviews (package_id, customer_id, rating, body) VALUES ($1, $2, 5, 'great')`,
			trek, customer.UserID)
		require.NoError(t, err)
		for range 2 {
			_, err = db.ExecContext(ctx,
				`INSERT INTO inquiries (package_id, customer_id, message) VALUES ($1, $2, 'is it open in winter?')`,
				trek, customer.UserID)
			require.NoError(t, err)
		}

		stats, err := NewDashboardRepo(db).VendorStats(ctx, vendor.UserID)
		require.NoError(t, err)
		assert.Equal(t, ports.VendorStats{Packages: 2, Bookings: 1, Reviews: 1, Inquiries: 2}, stats)

		empty, err := NewDashboardRepo(db).VendorStats(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Zero(t, empty)
	})
}
