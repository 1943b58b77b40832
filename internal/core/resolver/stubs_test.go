package resolver

import (
	"context"
	"sync"

	"github.com/eventplanner/planner/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	vendors  map[string]*domain.VendorRecord
	admins   map[string]bool

	profileErr error // returned by FindProfile
	vendorErr  error // returned by VendorExists
	adminErr   error // returned by AdminExists

	profilesCreated int
	profileUpdates  int
	vendorsCreated  int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		profiles: make(map[string]*domain.Profile),
		vendors:  make(map[string]*domain.VendorRecord),
		admins:   make(map[string]bool),
	}
}

func (r *stubRepo) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profilesCreated + r.profileUpdates + r.vendorsCreated
}

func (r *stubRepo) FindProfile(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profileErr != nil {
		return nil, r.profileErr
	}
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
	r.profilesCreated++
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
	r.profileUpdates++
	return nil
}

func (r *stubRepo) VendorExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vendorErr != nil {
		return false, r.vendorErr
	}
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
	r.vendorsCreated++
	return nil
}

func (r *stubRepo) AdminExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adminErr != nil {
		return false, r.adminErr
	}
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
	sets   int
	getErr error // returned by Get
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string]string)}
}

func (c *stubCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *stubCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.sets++
	return nil
}

func (c *stubCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type stubMetadata struct {
	mu       sync.Mutex
	identity *domain.Identity
	err      error
	updates  int
}

func (m *stubMetadata) UpdateMetadata(_ context.Context, patch map[string]string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.identity.Metadata == nil {
		m.identity.Metadata = make(map[string]string)
	}
	for k, v := range patch {
		m.identity.Metadata[k] = v
	}
	m.updates++
	return m.identity.Clone(), nil
}
