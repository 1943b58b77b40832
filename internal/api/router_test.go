package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/api/handler"
	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/resolver"
	"github.com/eventplanner/planner/internal/core/session"
)

type fixedCreds struct {
	identity *domain.Identity
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

func (f *fixedCreds) AccessToken() string { return "" }

type fixedResolver struct{ role domain.Role }

func (r fixedResolver) Resolve(_ context.Context, id *domain.Identity, _ ...resolver.Option) resolver.Result {
	return resolver.Result{Role: r.role, Identity: id.Clone()}
}

// stubSessions knows one signed-in vendor under token "vendor-token".
type stubSessions struct {
	vendor *session.Context
}

func (s *stubSessions) Lookup(_ context.Context, token string) (*session.Context, error) {
	if token != "vendor-token" {
		return nil, domain.ErrInvalidToken
	}
	return s.vendor, nil
}

func (s *stubSessions) Open(context.Context, string) (*session.Context, string, error) {
	return nil, "", domain.ErrNoSession
}

func (s *stubSessions) Bind(*session.Context) (string, bool)           { return "", false }
func (s *stubSessions) Rebind(string, *session.Context) (string, bool) { return "", false }
func (s *stubSessions) Release(string)                                 {}

// TestRouter builds the router once: the prometheus middleware registers
// its collectors globally.
func TestRouter(t *testing.T) {
	vendor := session.New(session.Config{
		Credentials: &fixedCreds{identity: &domain.Identity{ID: "v1", Email: "v@example.com"}},
		Resolver:    fixedResolver{role: domain.RoleVendor},
	}, zerolog.Nop())
	vendor.Start(context.Background())
	defer vendor.Close()

	e := NewRouter(Dependencies{
		Sessions: &stubSessions{vendor: vendor},
		Health:   map[string]handler.Pinger{},
		Log:      zerolog.Nop(),
	})

	cases := []struct {
		name     string
		method   string
		path     string
		token    string
		code     int
		location string
	}{
		{"liveness", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"anonymous dashboard", http.MethodGet, "/dashboard", "", http.StatusSeeOther, "/signin?redirect=%2Fdashboard"},
		{"vendor on admin view", http.MethodGet, "/admin", "vendor-token", http.StatusSeeOther, "/vendor/dashboard"},
		{"unknown token on organizer view", http.MethodGet, "/dashboard", "stale", http.StatusSeeOther, "/signin?redirect=%2Fdashboard"},
		{"sign out without session", http.MethodPost, "/auth/signout", "", http.StatusUnauthorized, ""},
		{"anonymous session lookup", http.MethodGet, "/auth/session", "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d (%s)", tc.code, rec.Code, rec.Body.String())
			}
			if tc.location != "" && rec.Header().Get("Location") != tc.location {
				t.Fatalf("expected Location %q, got %q", tc.location, rec.Header().Get("Location"))
			}
		})
	}
}
