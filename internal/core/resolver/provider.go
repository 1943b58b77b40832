package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
)

// Cache keys used in the durable client cache.
const (
	// PendingRoleKey holds a role chosen by an explicit action (sign-up)
	// that has not been confirmed by a resolution yet, stored as
	// "<user id>:<role>". Consumed once, by its owner only.
	PendingRoleKey = "pending_role"
	// ResolvedRoleKey mirrors the last resolved role.
	ResolvedRoleKey = "role"
)

// Provider is one source in the role precedence chain. TryResolve reports
// ok=false when the source has no answer for the identity.
type Provider interface {
	Name() string
	TryResolve(ctx context.Context, id *domain.Identity) (role domain.Role, ok bool, err error)
}

// mirror is implemented by providers that only echo another source. They
// are skipped when a resolution is triggered by a change of the records
// themselves.
type mirror interface {
	mirrorsRecords()
}

// DefaultProviders returns the precedence chain, highest authority first.
func DefaultProviders(repo ports.RoleRepository, cache ports.RoleCache, adminEmail string, log zerolog.Logger) []Provider {
	return []Provider{
		DesignatedAdmin(adminEmail),
		PendingRole(cache, log),
		MetadataRole(),
		ProfileRole(repo),
		VendorRecord(repo),
		AdminRecord(repo),
	}
}

// ── designated admin ──────────────────────────────────────────────────────────

type designatedAdmin struct{ email string }

// DesignatedAdmin resolves the bootstrap administrator address to admin.
// An empty address disables the provider.
func DesignatedAdmin(email string) Provider {
	return designatedAdmin{email: strings.TrimSpace(email)}
}

func (designatedAdmin) Name() string { return "designated_admin" }

func (p designatedAdmin) TryResolve(_ context.Context, id *domain.Identity) (domain.Role, bool, error) {
	if p.email == "" || !strings.EqualFold(strings.TrimSpace(id.Email), p.email) {
		return "", false, nil
	}
	return domain.RoleAdmin, true, nil
}

// ── pending role ──────────────────────────────────────────────────────────────

type pendingRole struct {
	cache ports.RoleCache
	log   zerolog.Logger
}

// PendingRole consumes the role stored by the last sign-up of this client.
func PendingRole(cache ports.RoleCache, log zerolog.Logger) Provider {
	return pendingRole{cache: cache, log: log}
}

func (pendingRole) Name() string    { return "pending" }
func (pendingRole) mirrorsRecords() {}

// PendingRoleValue encodes a pending role owned by userID.
func PendingRoleValue(userID string, role domain.Role) string {
	return userID + ":" + string(role)
}

func (p pendingRole) TryResolve(ctx context.Context, id *domain.Identity) (domain.Role, bool, error) {
	raw, found, err := p.cache.Get(ctx, PendingRoleKey)
	if err != nil {
		return "", false, fmt.Errorf("read pending role: %w: %v", domain.ErrSourceUnavailable, err)
	}
	if !found {
		return "", false, nil
	}

	owner, value, ok := strings.Cut(raw, ":")
	if ok && owner != id.ID {
		// Left in place for the account that chose it.
		return "", false, nil
	}
	if err := p.cache.Remove(ctx, PendingRoleKey); err != nil {
		p.log.Warn().Err(err).Str("user_id", id.ID).Msg("failed to clear pending role")
	}
	role, valid := domain.ParseRole(value)
	if !ok || !valid {
		p.log.Warn().Str("user_id", id.ID).Str("value", raw).Msg("discarding malformed pending role")
		return "", false, nil
	}
	return role, true, nil
}

// ── identity metadata ─────────────────────────────────────────────────────────

type metadataRole struct{}

// MetadataRole reads the role cached in the identity metadata.
func MetadataRole() Provider { return metadataRole{} }

func (metadataRole) Name() string    { return "metadata" }
func (metadataRole) mirrorsRecords() {}

func (metadataRole) TryResolve(_ context.Context, id *domain.Identity) (domain.Role, bool, error) {
	role, ok := id.MetadataRole()
	return role, ok, nil
}

// ── profile ───────────────────────────────────────────────────────────────────

type profileRole struct{ repo ports.ProfileRepository }

// ProfileRole reads Profile.role.
func ProfileRole(repo ports.ProfileRepository) Provider { return profileRole{repo: repo} }

func (profileRole) Name() string { return "profile" }

func (p profileRole) TryResolve(ctx context.Context, id *domain.Identity) (domain.Role, bool, error) {
	profile, err := p.repo.FindProfile(ctx, id.ID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !profile.Role.Valid() {
		return "", false, nil
	}
	return profile.Role, true, nil
}

// ── vendor / admin records ────────────────────────────────────────────────────

type vendorRecord struct{ repo ports.VendorRepository }

// VendorRecord answers vendor when a vendor record exists for the identity.
func VendorRecord(repo ports.VendorRepository) Provider { return vendorRecord{repo: repo} }

func (vendorRecord) Name() string { return "vendor_record" }

func (p vendorRecord) TryResolve(ctx context.Context, id *domain.Identity) (domain.Role, bool, error) {
	exists, err := p.repo.VendorExists(ctx, id.ID)
	if err != nil || !exists {
		return "", false, err
	}
	return domain.RoleVendor, true, nil
}

type adminRecord struct{ repo ports.AdminRepository }

// AdminRecord answers admin when an admin record exists for the identity.
func AdminRecord(repo ports.AdminRepository) Provider { return adminRecord{repo: repo} }

func (adminRecord) Name() string { return "admin_record" }

func (p adminRecord) TryResolve(ctx context.Context, id *domain.Identity) (domain.Role, bool, error) {
	exists, err := p.repo.AdminExists(ctx, id.ID)
	if err != nil || !exists {
		return "", false, err
	}
	return domain.RoleAdmin, true, nil
}
