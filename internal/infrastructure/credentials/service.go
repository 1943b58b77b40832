// Package credentials is the credential store: accounts with bcrypt
// password hashes and a metadata bag, HS256 access tokens, and one Client
// per browser session that reports session changes to its listeners.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
	"github.com/eventplanner/planner/pkg/logger"
)

const defaultMinPasswordLength = 6

// Token purposes.
const (
	purposeReset   = "reset"
	purposeConfirm = "confirm"
)

// Limiter scopes.
const (
	scopeSignIn = "signin"
	scopeSignUp = "signup"
	scopeReset  = "reset"
)

// Limiter counts attempts per subject.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string) error
	Reset(ctx context.Context, scope, subject string) error
}

// TokenStore keeps single-use tokens that map to a user id.
type TokenStore interface {
	Issue(ctx context.Context, purpose, userID string) (string, error)
	Consume(ctx context.Context, purpose, token string) (string, error)
}

// Revocations remembers access tokens that were signed out or rotated until
// they would have expired.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// Config tunes the credential store.
type Config struct {
	Secret              string
	TokenTTL            time.Duration
	MinPasswordLength   int
	RequireConfirmation bool
}

// Service owns the shared collaborators and mints per-client sessions.
type Service struct {
	dir      ports.IdentityDirectory
	limiter  Limiter
	tokens   TokenStore
	revoked  Revocations
	mailer   ports.Mailer
	signer   *Signer
	validate *validator.Validate
	log      zerolog.Logger

	minPassword    int
	requireConfirm bool
}

func NewService(dir ports.IdentityDirectory, limiter Limiter, tokens TokenStore, revoked Revocations, mailer ports.Mailer, cfg Config, log zerolog.Logger) *Service {
	minPassword := cfg.MinPasswordLength
	if minPassword <= 0 {
		minPassword = defaultMinPasswordLength
	}
	return &Service{
		dir:            dir,
		limiter:        limiter,
		tokens:         tokens,
		revoked:        revoked,
		mailer:         mailer,
		signer:         NewSigner(cfg.Secret, cfg.TokenTTL),
		validate:       validator.New(),
		log:            logger.WithComponent(log, "credentials"),
		minPassword:    minPassword,
		requireConfirm: cfg.RequireConfirmation,
	}
}

// NewClient returns a signed-out client with a fresh client key.
func (s *Service) NewClient() *Client {
	return newClient(s, uuid.NewString())
}

// Restore rebuilds the client an access token was issued to. No session
// event is emitted. Revoked tokens yield domain.ErrInvalidToken.
func (s *Service) Restore(ctx context.Context, accessToken string) (*Client, error) {
	claims, err := s.signer.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}
	acc, err := s.dir.FindByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	c := newClient(s, claims.ClientKey)
	c.identity = acc.Identity.Clone()
	c.token = accessToken
	return c, nil
}

// revoke denies accessToken for the rest of its lifetime. Tokens that no
// longer verify cannot be restored anyway.
func (s *Service) revoke(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	claims, err := s.signer.Parse(accessToken)
	if err != nil {
		return nil
	}
	ttl := s.signer.ttl
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.signer.now())
	}
	return s.revoked.Revoke(ctx, claims.ID, ttl)
}

// Register creates an account. It returns domain.ErrUserExists when the
// email is taken.
func (s *Service) Register(ctx context.Context, email, password string, metadata map[string]string, confirmed bool) (*domain.Identity, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(password) < s.minPassword {
		return nil, domain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if v != "" {
			md[k] = v
		}
	}
	acc, err := s.dir.Create(ctx, &domain.Account{
		Identity: domain.Identity{
			Email:          email,
			Metadata:       md,
			EmailConfirmed: confirmed,
			CreatedAt:      time.Now().UTC(),
		},
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}
	return acc.Identity.Clone(), nil
}

// FindIdentity looks an account up by email.
func (s *Service) FindIdentity(ctx context.Context, email string) (*domain.Identity, error) {
	acc, err := s.dir.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return acc.Identity.Clone(), nil
}

// ConfirmEmail marks the account of a confirmation token as confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.Consume(ctx, purposeConfirm, token)
	if err != nil {
		return err
	}
	return s.dir.ConfirmEmail(ctx, userID)
}

func (s *Service) sendConfirmation(ctx context.Context, id *domain.Identity) error {
	token, err := s.tokens.Issue(ctx, purposeConfirm, id.ID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Confirm your account with this token: %s", token)
	return s.mailer.Send(ctx, id.Email, "Confirm your email", body)
}

func (s *Service) sendReset(ctx context.Context, email string) error {
	acc, err := s.dir.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.log.Debug().Str("email", email).Msg("password reset for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find identity: %w", err)
	}
	token, err := s.tokens.Issue(ctx, purposeReset, acc.ID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Reset your password with this token: %s", token)
	return s.mailer.Send(ctx, acc.Email, "Reset your password", body)
}

// allow applies the limiter. Limiter outages do not block authentication.
func (s *Service) allow(ctx context.Context, scope, subject string) error {
	err := s.limiter.Allow(ctx, scope, subject)
	if err == nil || errors.Is(err, domain.ErrRateLimited) {
		return err
	}
	s.log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
