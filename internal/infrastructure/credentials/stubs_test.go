package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eventplanner/planner/internal/core/domain"
)

type stubDirectory struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	seq      int
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{accounts: map[string]*domain.Account{}}
}

func clone(a *domain.Account) *domain.Account {
	c := *a
	c.Identity = *a.Identity.Clone()
	return &c
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if a.Email == email {
			return clone(a), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *stubDirectory) FindByID(_ context.Context, id string) (*domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clone(a), nil
}

func (d *stubDirectory) Create(_ context.Context, account *domain.Account) (*domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return nil, domain.ErrUserExists
		}
	}
	d.seq++
	stored := clone(account)
	stored.ID = fmt.Sprintf("user-%d", d.seq)
	d.accounts[stored.ID] = stored
	return clone(stored), nil
}

func (d *stubDirectory) UpdateMetadata(_ context.Context, id string, patch map[string]string) (*domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if a.Metadata == nil {
		a.Metadata = map[string]string{}
	}
	for k, v := range patch {
		if v == "" {
			delete(a.Metadata, k)
			continue
		}
		a.Metadata[k] = v
	}
	return clone(a), nil
}

func (d *stubDirectory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (d *stubDirectory) ConfirmEmail(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	a.EmailConfirmed = true
	return nil
}

type stubLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func newStubLimiter(limit int) *stubLimiter {
	return &stubLimiter{limit: limit, counts: map[string]int{}}
}

func (l *stubLimiter) Allow(_ context.Context, scope, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[scope+":"+subject]++
	if l.counts[scope+":"+subject] > l.limit {
		return domain.ErrRateLimited
	}
	return nil
}

func (l *stubLimiter) Reset(_ context.Context, scope, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, scope+":"+subject)
	return nil
}

type stubTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	seq    int
}

func newStubTokens() *stubTokens {
	return &stubTokens{tokens: map[string]string{}}
}

func (s *stubTokens) Issue(_ context.Context, purpose, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	token := fmt.Sprintf("%s-%d", purpose, s.seq)
	s.tokens[purpose+":"+token] = userID
	return token, nil
}

func (s *stubTokens) Consume(_ context.Context, purpose, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[purpose+":"+token]
	if !ok {
		return "", domain.ErrInvalidToken
	}
	delete(s.tokens, purpose+":"+token)
	return id, nil
}

type stubRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func newStubRevocations() *stubRevocations {
	return &stubRevocations{revoked: map[string]time.Duration{}}
}

func (r *stubRevocations) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.revoked[tokenID] = ttl
	return nil
}

func (r *stubRevocations) Revoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok, nil
}

type sentMail struct {
	to, subject, body string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// lastToken returns the token at the end of the most recent mail body.
func (m *captureMailer) lastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	body := m.sent[len(m.sent)-1].body
	return body[strings.LastIndex(body, " ")+1:]
}
