package handler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/resolver"
	"github.com/eventplanner/planner/internal/core/session"
)

// ---------------------------------------------------------------------------
// Credential store stub
// ---------------------------------------------------------------------------

type stubCreds struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Identity
	passwords map[string]string
	current   *domain.Identity
	signInErr error
	listeners []func(domain.SessionEvent)
	signedOut bool
}

func newStubCreds() *stubCreds {
	return &stubCreds{accounts: map[string]*domain.Identity{}, passwords: map[string]string{}}
}

func (s *stubCreds) add(id, email, password string) {
	s.accounts[email] = &domain.Identity{ID: id, Email: email, EmailConfirmed: true}
	s.passwords[email] = password
}

func (s *stubCreds) SignIn(_ context.Context, email, password string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	id, ok := s.accounts[email]
	if !ok || s.passwords[email] != password {
		return nil, domain.ErrInvalidCredentials
	}
	s.current = id.Clone()
	return id.Clone(), nil
}

// SignUp never signs in: the account waits for email confirmation.
func (s *stubCreds) SignUp(_ context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; ok {
		return nil, domain.ErrUserExists
	}
	id := &domain.Identity{ID: "new-" + email, Email: email, Metadata: metadata}
	s.accounts[email] = id
	s.passwords[email] = password
	return id.Clone(), nil
}

func (s *stubCreds) SignOut(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.signedOut = true
	return nil
}

func (s *stubCreds) GetSession(context.Context) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone(), nil
}

func (s *stubCreds) OnSessionChange(fn func(domain.SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	return func() {}
}

func (s *stubCreds) UpdateMetadata(context.Context, map[string]string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, domain.ErrNoSession
	}
	return s.current.Clone(), nil
}

func (s *stubCreds) ResetPasswordEmail(context.Context, string) error { return nil }

func (s *stubCreds) UpdatePassword(_ context.Context, pw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.ErrNoSession
	}
	if len(pw) < 6 {
		return domain.ErrWeakPassword
	}
	s.passwords[s.current.Email] = pw
	return nil
}

func (s *stubCreds) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return "tok-" + s.current.ID
}

// ---------------------------------------------------------------------------
// Role store stubs
// ---------------------------------------------------------------------------

type stubRoles struct {
	mu       sync.Mutex
	profiles map[string]domain.Role
	vendors  map[string]*domain.VendorRecord
}

func newStubRoles() *stubRoles {
	return &stubRoles{profiles: map[string]domain.Role{}, vendors: map[string]*domain.VendorRecord{}}
}

func (r *stubRoles) FindProfile(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &domain.Profile{ID: id, Role: role}, nil
}

func (r *stubRoles) FindProfileByEmail(context.Context, string) (*domain.Profile, error) {
	return nil, domain.ErrProfileNotFound
}

func (r *stubRoles) CreateProfile(_ context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return domain.ErrUserExists
	}
	r.profiles[p.ID] = p.Role
	return nil
}

func (r *stubRoles) UpdateProfileRole(_ context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[id] = role
	return nil
}

func (r *stubRoles) VendorExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.vendors[userID]
	return ok, nil
}

func (r *stubRoles) FindVendorByUser(_ context.Context, userID string) (*domain.VendorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vendors[userID]
	if !ok {
		return nil, domain.ErrVendorNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *stubRoles) CreateVendor(_ context.Context, v *domain.VendorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.vendors[v.UserID] = &cp
	return nil
}

func (r *stubRoles) AdminExists(context.Context, string) (bool, error) { return false, nil }

func (r *stubRoles) CreateAdmin(context.Context, *domain.AdminRecord) error { return nil }

func (r *stubRoles) CountAdmins(context.Context) (int64, error) { return 0, nil }

type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

// newContext wires a session context over creds and roles with the real resolver.
func newContext(creds *stubCreds, roles *stubRoles) *session.Context {
	cache := &memCache{m: map[string]string{}}
	sc := session.New(session.Config{
		Credentials: creds,
		Repo:        roles,
		Cache:       cache,
		Resolver: resolver.New(resolver.Config{
			Repo:     roles,
			Cache:    cache,
			Metadata: creds,
		}, zerolog.Nop()),
	}, zerolog.Nop())
	sc.Start(context.Background())
	return sc
}

// ---------------------------------------------------------------------------
// Registry stub
// ---------------------------------------------------------------------------

type stubRegistry struct {
	anon     *session.Context
	bound    map[string]*session.Context
	released []string
}

func (r *stubRegistry) Open(_ context.Context, clientID string) (*session.Context, string, error) {
	return r.anon, "client-1", nil
}

func (r *stubRegistry) Bind(c *session.Context) (string, bool) {
	token := c.AccessToken()
	if token == "" {
		return "", false
	}
	if r.bound == nil {
		r.bound = map[string]*session.Context{}
	}
	r.bound[token] = c
	return token, true
}

func (r *stubRegistry) Rebind(_ string, c *session.Context) (string, bool) {
	return r.Bind(c)
}

func (r *stubRegistry) Release(token string) {
	r.released = append(r.released, token)
	delete(r.bound, token)
}

type stubConfirmer struct {
	tokens map[string]bool
}

func (s *stubConfirmer) ConfirmEmail(_ context.Context, token string) error {
	if !s.tokens[token] {
		return domain.ErrInvalidToken
	}
	delete(s.tokens, token)
	return nil
}
