package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubAccounts struct {
	existing  *domain.Identity
	registers int
}

func (a *stubAccounts) Register(_ context.Context, email, _ string, metadata map[string]string, confirmed bool) (*domain.Identity, error) {
	a.registers++
	if a.existing != nil {
		return nil, domain.ErrUserExists
	}
	if !confirmed || metadata[domain.MetadataRoleKey] != "admin" {
		return nil, errors.New("seed must be confirmed with the admin role")
	}
	a.existing = &domain.Identity{ID: "admin-1", Email: email, EmailConfirmed: true, Metadata: metadata}
	return a.existing, nil
}

func (a *stubAccounts) FindIdentity(_ context.Context, email string) (*domain.Identity, error) {
	if a.existing == nil || a.existing.Email != email {
		return nil, domain.ErrUserNotFound
	}
	return a.existing, nil
}

type stubRoleRepo struct {
	profiles map[string]*domain.Profile
	admins   map[string]bool
	countErr error
}

func newStubRoleRepo() *stubRoleRepo {
	return &stubRoleRepo{profiles: map[string]*domain.Profile{}, admins: map[string]bool{}}
}

func (r *stubRoleRepo) FindProfile(_ context.Context, id string) (*domain.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func (r *stubRoleRepo) FindProfileByEmail(_ context.Context, email string) (*domain.Profile, error) {
	for _, p := range r.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (r *stubRoleRepo) CreateProfile(_ context.Context, p *domain.Profile) error {
	if _, ok := r.profiles[p.ID]; ok {
		return domain.ErrUserExists
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *stubRoleRepo) UpdateProfileRole(_ context.Context, id string, role domain.Role) error {
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.Role = role
	return nil
}

func (r *stubRoleRepo) VendorExists(context.Context, string) (bool, error) { return false, nil }

func (r *stubRoleRepo) FindVendorByUser(context.Context, string) (*domain.VendorRecord, error) {
	return nil, domain.ErrVendorNotFound
}

func (r *stubRoleRepo) CreateVendor(context.Context, *domain.VendorRecord) error { return nil }

func (r *stubRoleRepo) AdminExists(_ context.Context, userID string) (bool, error) {
	return r.admins[userID], nil
}

func (r *stubRoleRepo) CreateAdmin(_ context.Context, a *domain.AdminRecord) error {
	if r.admins[a.UserID] {
		return domain.ErrUserExists
	}
	r.admins[a.UserID] = true
	return nil
}

func (r *stubRoleRepo) CountAdmins(context.Context) (int64, error) {
	return int64(len(r.admins)), r.countErr
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSeedAdmin_CreatesIdentityProfileAndRecord(t *testing.T) {
	accounts := &stubAccounts{}
	repo := newStubRoleRepo()

	err := SeedAdmin(context.Background(), accounts, repo, AdminSeed{Email: "root@example.com", Password: "secret1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if p := repo.profiles["admin-1"]; p == nil || p.Role != domain.RoleAdmin {
		t.Fatalf("expected admin profile, got %+v", p)
	}
	if !repo.admins["admin-1"] {
		t.Fatalf("expected admin record")
	}
}

func TestSeedAdmin_PromotesExistingAccount(t *testing.T) {
	accounts := &stubAccounts{existing: &domain.Identity{ID: "u-7", Email: "root@example.com"}}
	repo := newStubRoleRepo()
	repo.profiles["u-7"] = &domain.Profile{ID: "u-7", Email: "root@example.com", Role: domain.RoleOrganizer}

	if err := SeedAdmin(context.Background(), accounts, repo, AdminSeed{Email: "root@example.com", Password: "secret1"}, zerolog.Nop()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if repo.profiles["u-7"].Role != domain.RoleAdmin {
		t.Fatalf("expected profile promoted to admin")
	}
	if !repo.admins["u-7"] {
		t.Fatalf("expected admin record for existing account")
	}
}

func TestSeedAdmin_SkipsWhenAdminExistsOrUnconfigured(t *testing.T) {
	accounts := &stubAccounts{}
	repo := newStubRoleRepo()
	repo.admins["someone"] = true

	if err := SeedAdmin(context.Background(), accounts, repo, AdminSeed{Email: "root@example.com", Password: "secret1"}, zerolog.Nop()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SeedAdmin(context.Background(), accounts, newStubRoleRepo(), AdminSeed{}, zerolog.Nop()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if accounts.registers != 0 {
		t.Fatalf("expected no registration, got %d", accounts.registers)
	}
}

func TestSeedAdmin_PropagatesRepositoryErrors(t *testing.T) {
	repo := newStubRoleRepo()
	repo.countErr = domain.ErrSourceUnavailable

	err := SeedAdmin(context.Background(), &stubAccounts{}, repo, AdminSeed{Email: "root@example.com", Password: "secret1"}, zerolog.Nop())
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}
