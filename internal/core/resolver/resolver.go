// Package resolver determines the single authoritative role of an identity
// by walking a prioritized list of role providers, then writes the winning
// role back to every place it is cached.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
	"github.com/eventplanner/planner/internal/pkg/metrics"
	"github.com/eventplanner/planner/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second

	sourceDefault  = "default"
	sourceFallback = "fallback"
)

// Config wires a Resolver to its collaborators.
type Config struct {
	Repo     ports.RoleRepository
	Cache    ports.RoleCache
	Metadata ports.MetadataWriter
	// AdminEmail is the bootstrap administrator address; empty disables the override.
	AdminEmail string
	// Timeout bounds the provider chain of a single resolution.
	Timeout time.Duration
}

// Result is the outcome of a resolution. Role is always set; Err carries an
// unexpected source failure that forced the fallback role.
type Result struct {
	Role     domain.Role
	Source   string
	Identity *domain.Identity
	Err      error
}

// Resolver is safe for concurrent use. Two resolutions of the same identity
// converge because every write is idempotent and the last write wins.
type Resolver struct {
	providers []Provider
	repo      ports.RoleRepository
	cache     ports.RoleCache
	metadata  ports.MetadataWriter
	timeout   time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// New builds a Resolver with the default precedence chain.
func New(cfg Config, log zerolog.Logger) *Resolver {
	log = logger.WithComponent(log, "role_resolver")
	return NewWithProviders(cfg, DefaultProviders(cfg.Repo, cfg.Cache, cfg.AdminEmail, log), log)
}

// NewWithProviders builds a Resolver over an explicit provider chain.
func NewWithProviders(cfg Config, providers []Provider, log zerolog.Logger) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resolver{
		providers: providers,
		repo:      cfg.Repo,
		cache:     cfg.Cache,
		metadata:  cfg.Metadata,
		timeout:   timeout,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type options struct {
	refresh bool
}

// Option adjusts a single resolution.
type Option func(*options)

// WithRefresh skips providers that only mirror the records (pending role,
// identity metadata). Used when a profile, vendor or admin record changed
// out-of-band so the change is not masked by a stale cache.
func WithRefresh() Option {
	return func(o *options) { o.refresh = true }
}

// Resolve returns the role of id. It never fails: unavailable sources are
// skipped, and any other failure yields the default role with Err set.
func (r *Resolver) Resolve(ctx context.Context, id *domain.Identity, opts ...Option) Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()
	defer func() { metrics.RoleResolutionDuration.Observe(time.Since(start).Seconds()) }()

	role, source, err := r.walk(ctx, id, o)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", id.ID).Msg("role resolution failed, using default role")
		metrics.RoleResolutionsTotal.WithLabelValues(sourceFallback, string(domain.DefaultRole)).Inc()
		return Result{Role: domain.DefaultRole, Source: sourceFallback, Identity: id.Clone(), Err: err}
	}

	updated := r.writeBack(ctx, id, role, source)

	metrics.RoleResolutionsTotal.WithLabelValues(source, string(role)).Inc()
	r.log.Debug().
		Str("user_id", id.ID).
		Str("role", string(role)).
		Str("source", source).
		Bool("refresh", o.refresh).
		Msg("role resolved")

	return Result{Role: role, Source: source, Identity: updated}
}

// walk runs the provider chain under the resolution timeout.
func (r *Resolver) walk(ctx context.Context, id *domain.Identity, o options) (domain.Role, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, p := range r.providers {
		if _, ok := p.(mirror); ok && o.refresh {
			continue
		}
		role, ok, err := p.TryResolve(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrSourceUnavailable) {
				// An unreachable source abstains; the next one may still answer.
				metrics.RoleSourceErrorsTotal.WithLabelValues(p.Name(), "unavailable").Inc()
				r.log.Error().Err(err).Str("source", p.Name()).Str("user_id", id.ID).Msg("role source unavailable, skipping")
				continue
			}
			metrics.RoleSourceErrorsTotal.WithLabelValues(p.Name(), "error").Inc()
			return "", "", fmt.Errorf("resolve role via %s: %w", p.Name(), err)
		}
		if ok {
			return role, p.Name(), nil
		}
	}
	return domain.DefaultRole, sourceDefault, nil
}

// writeBack propagates role to the profile, vendor record, client cache and
// identity metadata. Each step only writes when the target disagrees; every
// failure is logged and ignored. The metadata write goes last because the
// credential store announces it, which may trigger another resolution.
func (r *Resolver) writeBack(ctx context.Context, id *domain.Identity, role domain.Role, source string) *domain.Identity {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.syncProfile(ctx, id, role)
	if role == domain.RoleVendor && source != "vendor_record" {
		r.ensureVendor(ctx, id)
	}
	r.syncCache(ctx, id, role)
	return r.syncMetadata(ctx, id, role)
}

func (r *Resolver) syncProfile(ctx context.Context, id *domain.Identity, role domain.Role) {
	profile, err := r.repo.FindProfile(ctx, id.ID)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		now := r.now()
		err = r.repo.CreateProfile(ctx, &domain.Profile{
			ID:        id.ID,
			Email:     id.Email,
			Role:      role,
			FirstName: id.Metadata["first_name"],
			LastName:  id.Metadata["last_name"],
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if errors.Is(err, domain.ErrUserExists) {
			// Created concurrently; fall through to a plain update.
			err = r.repo.UpdateProfileRole(ctx, id.ID, role)
		}
		if err == nil {
			r.log.Info().Str("user_id", id.ID).Str("role", string(role)).Msg("profile created")
		}
	case err != nil:
	case profile.Role != role:
		err = r.repo.UpdateProfileRole(ctx, id.ID, role)
	}
	if err != nil {
		r.writeBackFailed(err, "profile", id)
	}
}

func (r *Resolver) ensureVendor(ctx context.Context, id *domain.Identity) {
	exists, err := r.repo.VendorExists(ctx, id.ID)
	if err == nil && !exists {
		now := r.now()
		company := id.Metadata["company_name"]
		if company == "" {
			company = id.Email
		}
		err = r.repo.CreateVendor(ctx, &domain.VendorRecord{
			UserID:      id.ID,
			CompanyName: company,
			VendorType:  id.Metadata["vendor_type"],
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err == nil {
			r.log.Info().Str("user_id", id.ID).Msg("vendor record created")
		}
	}
	if err != nil {
		r.writeBackFailed(err, "vendor", id)
	}
}

func (r *Resolver) syncCache(ctx context.Context, id *domain.Identity, role domain.Role) {
	cached, found, err := r.cache.Get(ctx, ResolvedRoleKey)
	if err == nil && found && cached == string(role) {
		return
	}
	if err := r.cache.Set(ctx, ResolvedRoleKey, string(role)); err != nil {
		r.writeBackFailed(err, "cache", id)
	}
}

func (r *Resolver) syncMetadata(ctx context.Context, id *domain.Identity, role domain.Role) *domain.Identity {
	if current, ok := id.MetadataRole(); ok && current == role {
		return id.Clone()
	}
	updated, err := r.metadata.UpdateMetadata(ctx, map[string]string{domain.MetadataRoleKey: string(role)})
	if err != nil || updated == nil {
		if err != nil {
			r.writeBackFailed(err, "metadata", id)
		}
		return id.Clone()
	}
	return updated.Clone()
}

func (r *Resolver) writeBackFailed(err error, target string, id *domain.Identity) {
	metrics.RoleWriteBackFailuresTotal.WithLabelValues(target).Inc()
	r.log.Warn().Err(err).Str("target", target).Str("user_id", id.ID).Msg("role write-back failed")
}
