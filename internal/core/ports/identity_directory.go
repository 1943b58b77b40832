package ports

import (
	"context"

	"github.com/eventplanner/planner/internal/core/domain"
)

// IdentityDirectory persists accounts for the credential store.
type IdentityDirectory interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateMetadata(ctx context.Context, id string, patch map[string]string) (*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	ConfirmEmail(ctx context.Context, id string) error
}

// Mailer delivers transactional email such as password reset links.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
