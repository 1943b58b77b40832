package ports

import (
	"context"

	"github.com/eventplanner/planner/internal/core/domain"
)

// CredentialStore is the authentication provider as seen by one client.
// It tracks that client's current session and notifies listeners of changes.
type CredentialStore interface {
	SignIn(ctx context.Context, email, password string) (*domain.Identity, error)
	// SignUp registers a new identity. When the store does not require email
	// confirmation the client is signed in as a side effect.
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current identity, or nil when signed out.
	GetSession(ctx context.Context) (*domain.Identity, error)
	// OnSessionChange registers fn and returns a function that removes it.
	OnSessionChange(fn func(domain.SessionEvent)) (unsubscribe func())
	UpdateMetadata(ctx context.Context, patch map[string]string) (*domain.Identity, error)
	ResetPasswordEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	// AccessToken returns the bearer token of the current session, or "".
	AccessToken() string
}

// MetadataWriter is the subset of CredentialStore the role resolver writes back through.
type MetadataWriter interface {
	UpdateMetadata(ctx context.Context, patch map[string]string) (*domain.Identity, error)
}

// SessionRecoverer is implemented by stores that can start a session from a
// password reset token.
type SessionRecoverer interface {
	Recover(ctx context.Context, resetToken string) (*domain.Identity, error)
}

// TokenRefresher is implemented by stores that can rotate the access token.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}
