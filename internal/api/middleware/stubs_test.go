package middleware

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/resolver"
	"github.com/eventplanner/planner/internal/core/session"
)

// fixedCreds is a credential store holding one identity (or none).
type fixedCreds struct {
	identity *domain.Identity
	token    string
}

func (f *fixedCreds) SignIn(context.Context, string, string) (*domain.Identity, error) {
	return nil, domain.ErrInvalidCredentials
}

func (f *fixedCreds) SignUp(context.Context, string, string, map[string]string) (*domain.Identity, error) {
	return nil, domain.ErrUserExists
}

func (f *fixedCreds) SignOut(context.Context) error { return nil }

func (f *fixedCreds) GetSession(context.Context) (*domain.Identity, error) {
	return f.identity.Clone(), nil
}

func (f *fixedCreds) OnSessionChange(func(domain.SessionEvent)) func() { return func() {} }

func (f *fixedCreds) UpdateMetadata(context.Context, map[string]string) (*domain.Identity, error) {
	return f.identity.Clone(), nil
}

func (f *fixedCreds) ResetPasswordEmail(context.Context, string) error { return nil }

func (f *fixedCreds) UpdatePassword(context.Context, string) error { return nil }

func (f *fixedCreds) AccessToken() string { return f.token }

type fixedResolver struct{ role domain.Role }

func (r fixedResolver) Resolve(_ context.Context, id *domain.Identity, _ ...resolver.Option) resolver.Result {
	return resolver.Result{Role: r.role, Identity: id.Clone()}
}

// newSession returns a started context. A nil identity yields a signed-out one.
func newSession(id *domain.Identity, role domain.Role) *session.Context {
	sc := session.New(session.Config{
		Credentials: &fixedCreds{identity: id, token: "tok"},
		Resolver:    fixedResolver{role: role},
	}, zerolog.Nop())
	sc.Start(context.Background())
	return sc
}

type stubLookup struct {
	sessions map[string]*session.Context
	err      error
}

func (s *stubLookup) Lookup(_ context.Context, token string) (*session.Context, error) {
	if s.err != nil {
		return nil, s.err
	}
	sc, ok := s.sessions[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return sc, nil
}
