package ports

import (
	"context"

	"github.com/eventplanner/planner/internal/core/domain"
)

// ProfileRepository stores one role-bearing profile per identity.
// Lookups return domain.ErrProfileNotFound for a missing row and
// domain.ErrSourceUnavailable when the backing table cannot be used.
type ProfileRepository interface {
	FindProfile(ctx context.Context, id string) (*domain.Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*domain.Profile, error)
	// CreateProfile returns domain.ErrUserExists when a profile with the same id exists.
	CreateProfile(ctx context.Context, p *domain.Profile) error
	UpdateProfileRole(ctx context.Context, id string, role domain.Role) error
}

// VendorRepository stores vendor records keyed by owning user id.
type VendorRepository interface {
	VendorExists(ctx context.Context, userID string) (bool, error)
	FindVendorByUser(ctx context.Context, userID string) (*domain.VendorRecord, error)
	CreateVendor(ctx context.Context, v *domain.VendorRecord) error
}

// AdminRepository stores admin records keyed by user id.
type AdminRepository interface {
	AdminExists(ctx context.Context, userID string) (bool, error)
	CreateAdmin(ctx context.Context, a *domain.AdminRecord) error
	CountAdmins(ctx context.Context) (int64, error)
}

// RoleRepository is the full profile/role record store.
type RoleRepository interface {
	ProfileRepository
	VendorRepository
	AdminRepository
}
