package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
)

// AccountRegistrar creates and looks up credential store accounts.
type AccountRegistrar interface {
	Register(ctx context.Context, email, password string, metadata map[string]string, confirmed bool) (*domain.Identity, error)
	FindIdentity(ctx context.Context, email string) (*domain.Identity, error)
}

// AdminSeed names the first administrator.
type AdminSeed struct {
	Email    string
	Password string
}

// SeedAdmin makes sure at least one administrator exists. When no admin
// record is present it creates (or reuses) the seed identity, gives it an
// admin profile and an admin record. An empty seed disables it.
func SeedAdmin(ctx context.Context, accounts AccountRegistrar, repo ports.RoleRepository, seed AdminSeed, log zerolog.Logger) error {
	email := strings.TrimSpace(seed.Email)
	if email == "" || seed.Password == "" {
		log.Debug().Msg("admin seed not configured")
		return nil
	}

	// 1. Nothing to do once any admin exists.
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n > 0 {
		return nil
	}

	// 2. Identity, reusing an existing account with the same email.
	id, err := accounts.Register(ctx, email, seed.Password, map[string]string{domain.MetadataRoleKey: string(domain.RoleAdmin)}, true)
	if errors.Is(err, domain.ErrUserExists) {
		id, err = accounts.FindIdentity(ctx, email)
	}
	if err != nil {
		return fmt.Errorf("seed admin identity: %w", err)
	}

	// 3. Profile.
	now := time.Now().UTC()
	err = repo.CreateProfile(ctx, &domain.Profile{
		ID:        id.ID,
		Email:     id.Email,
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, domain.ErrUserExists) {
		err = repo.UpdateProfileRole(ctx, id.ID, domain.RoleAdmin)
	}
	if err != nil {
		return fmt.Errorf("seed admin profile: %w", err)
	}

	// 4. Admin record.
	if err := repo.CreateAdmin(ctx, &domain.AdminRecord{UserID: id.ID, CreatedAt: now}); err != nil && !errors.Is(err, domain.ErrUserExists) {
		return fmt.Errorf("seed admin record: %w", err)
	}

	log.Info().Str("user_id", id.ID).Str("email", id.Email).Msg("seeded administrator")
	return nil
}
