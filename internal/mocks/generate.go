// Package mocks provides mock implementations of the marketplace ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/ports. Hand-written in-memory fakes for the same ports live in internal/mocks/auth.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockProfileRepository(ctrl)
//	repo.EXPECT().GetByUserID(gomock.Any(), "user-1").Return(profile, nil)
package mocks

// IdentityProvider: SignUp, SignInWithPassword, Refresh, SignOut, DeleteUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/asktourist/marketplace/internal/ports IdentityProvider

// ProfileRepository: GetByUserID, Create, EnsureAdmin, ListPendingVendors, SetApproval
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_repository_mock.go github.com/asktourist/marketplace/internal/ports ProfileRepository

// SessionStore: Save, Get, GetByAccessToken, GetByRefreshToken, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/asktourist/marketplace/internal/ports SessionStore

// OrphanQueue: Enqueue, Dequeue, Len
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=orphan_queue_mock.go github.com/asktourist/marketplace/internal/ports OrphanQueue

// DashboardRepository: VendorStats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dashboard_repository_mock.go github.com/asktourist/marketplace/internal/ports DashboardRepository
