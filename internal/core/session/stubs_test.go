package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Credential store stub. Events are emitted synchronously, outside the lock.
// ---------------------------------------------------------------------------

type stubAccount struct {
	identity  *domain.Identity
	password  string
	confirmed bool
}

type stubCreds struct {
	mu         sync.Mutex
	accounts   map[string]*stubAccount
	current    *domain.Identity
	listeners  map[int]func(domain.SessionEvent)
	next       int
	signInErr  error
	autoSignIn bool
	signOuts   int
	resets     []string
	recovery   map[string]string
}

func newStubCreds() *stubCreds {
	return &stubCreds{
		accounts:  make(map[string]*stubAccount),
		listeners: make(map[int]func(domain.SessionEvent)),
		recovery:  make(map[string]string),
	}
}

func (s *stubCreds) addAccount(id, email, password string, metadata map[string]string) *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity := &domain.Identity{ID: id, Email: email, Metadata: metadata, EmailConfirmed: true}
	s.accounts[email] = &stubAccount{identity: identity, password: password, confirmed: true}
	return identity.Clone()
}

func (s *stubCreds) emit(ev domain.SessionEvent) {
	s.mu.Lock()
	fns := make([]func(domain.SessionEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *stubCreds) SignIn(_ context.Context, email, password string) (*domain.Identity, error) {
	s.mu.Lock()
	if s.signInErr != nil {
		s.mu.Unlock()
		return nil, s.signInErr
	}
	acc, ok := s.accounts[email]
	if !ok || acc.password != password {
		s.mu.Unlock()
		return nil, domain.ErrInvalidCredentials
	}
	if !acc.confirmed {
		s.mu.Unlock()
		return nil, domain.ErrEmailNotConfirmed
	}
	s.current = acc.identity.Clone()
	identity := s.current.Clone()
	s.mu.Unlock()

	s.emit(domain.SessionEvent{Type: domain.SessionSignedIn, Identity: identity.Clone()})
	return identity, nil
}

func (s *stubCreds) SignUp(_ context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	s.mu.Lock()
	if _, ok := s.accounts[email]; ok {
		s.mu.Unlock()
		return nil, domain.ErrUserExists
	}
	identity := &domain.Identity{ID: fmt.Sprintf("u%d", len(s.accounts)+1), Email: email, Metadata: metadata}
	s.accounts[email] = &stubAccount{identity: identity, password: password, confirmed: s.autoSignIn}
	auto := s.autoSignIn
	if auto {
		s.current = identity.Clone()
	}
	s.mu.Unlock()

	if auto {
		s.emit(domain.SessionEvent{Type: domain.SessionSignedIn, Identity: identity.Clone()})
	}
	return identity.Clone(), nil
}

func (s *stubCreds) confirm(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email].confirmed = true
}

func (s *stubCreds) SignOut(_ context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.signOuts++
	s.mu.Unlock()
	s.emit(domain.SessionEvent{Type: domain.SessionSignedOut})
	return nil
}

func (s *stubCreds) GetSession(_ context.Context) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone(), nil
}

func (s *stubCreds) OnSessionChange(fn func(domain.SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *stubCreds) UpdateMetadata(_ context.Context, patch map[string]string) (*domain.Identity, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, domain.ErrNoSession
	}
	acc := s.accounts[s.current.Email]
	if acc.identity.Metadata == nil {
		acc.identity.Metadata = make(map[string]string)
	}
	for k, v := range patch {
		acc.identity.Metadata[k] = v
	}
	s.current = acc.identity.Clone()
	identity := s.current.Clone()
	s.mu.Unlock()

	s.emit(domain.SessionEvent{Type: domain.SessionUserUpdated, Identity: identity.Clone()})
	return identity, nil
}

func (s *stubCreds) ResetPasswordEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, email)
	return nil
}

func (s *stubCreds) UpdatePassword(_ context.Context, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.ErrNoSession
	}
	s.accounts[s.current.Email].password = newPassword
	return nil
}

// Recover treats recovery[token] as the email of the account to sign in.
func (s *stubCreds) Recover(_ context.Context, token string) (*domain.Identity, error) {
	s.mu.Lock()
	email, ok := s.recovery[token]
	delete(s.recovery, token)
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrInvalidToken
	}
	s.current = s.accounts[email].identity.Clone()
	identity := s.current.Clone()
	s.mu.Unlock()

	s.emit(domain.SessionEvent{Type: domain.SessionSignedIn, Identity: identity.Clone()})
	return identity, nil
}

func (s *stubCreds) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return "token-" + s.current.ID
}

func (s *stubCreds) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// ---------------------------------------------------------------------------
// Repository, cache and feed stubs
// ---------------------------------------------------------------------------

type stubRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	vendors  map[string]*domain.VendorRecord
	admins   map[string]bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		profiles: make(map[string]*domain.Profile),
		vendors:  make(map[string]*domain.VendorRecord),
		admins:   make(map[string]bool),
	}
}

func (r *stubRepo) profileRole(id string) domain.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		return p.Role
	}
	return ""
}

func (r *stubRepo) setProfileRole(id string, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[id] = &domain.Profile{ID: id, Role: role, Active: true}
}

func (r *stubRepo) FindProfile(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *stubRepo) FindProfileByEmail(_ context.Context, email string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.Email == email {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (r *stubRepo) CreateProfile(_ context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return domain.ErrUserExists
	}
	clone := *p
	r.profiles[p.ID] = &clone
	return nil
}

func (r *stubRepo) UpdateProfileRole(_ context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.Role = role
	return nil
}

func (r *stubRepo) VendorExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.vendors[userID]
	return ok, nil
}

func (r *stubRepo) FindVendorByUser(_ context.Context, userID string) (*domain.VendorRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vendors[userID]
	if !ok {
		return nil, domain.ErrVendorNotFound
	}
	clone := *v
	return &clone, nil
}

func (r *stubRepo) CreateVendor(_ context.Context, v *domain.VendorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *v
	r.vendors[v.UserID] = &clone
	return nil
}

func (r *stubRepo) AdminExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admins[userID], nil
}

func (r *stubRepo) CreateAdmin(_ context.Context, a *domain.AdminRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[a.UserID] = true
	return nil
}

func (r *stubRepo) CountAdmins(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.admins)), nil
}

type stubCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string]string)}
}

func (c *stubCache) value(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *stubCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.value(key)
	return v, ok, nil
}

func (c *stubCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *stubCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type stubFeed struct {
	mu   sync.Mutex
	subs map[int]*stubSub
	next int
}

type stubSub struct {
	feed                 *stubFeed
	id                   int
	table, column, value string
	fn                   func(domain.ChangeEvent)
}

func newStubFeed() *stubFeed {
	return &stubFeed{subs: make(map[int]*stubSub)}
}

func (f *stubFeed) Subscribe(table, column, value string, fn func(domain.ChangeEvent)) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &stubSub{feed: f, id: f.next, table: table, column: column, value: value, fn: fn}
	f.next++
	f.subs[s.id] = s
	return s, nil
}

func (s *stubSub) Unsubscribe() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.subs, s.id)
}

func (f *stubFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *stubFeed) emit(ev domain.ChangeEvent) {
	f.mu.Lock()
	var fns []func(domain.ChangeEvent)
	for _, s := range f.subs {
		if s.table == ev.Table && ev.Columns[s.column] == s.value {
			fns = append(fns, s.fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
