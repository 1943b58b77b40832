package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
)

// Client is the credential session of one browser client. Listeners are
// called synchronously after the client's lock is released.
type Client struct {
	svc *Service
	key string

	mu        sync.Mutex
	identity  *domain.Identity
	token     string
	listeners map[int]func(domain.SessionEvent)
	nextID    int
}

var _ ports.CredentialStore = (*Client)(nil)

func newClient(svc *Service, key string) *Client {
	return &Client{
		svc:       svc,
		key:       key,
		listeners: make(map[int]func(domain.SessionEvent)),
	}
}

// Key identifies the client. It is carried in every access token the client
// receives, so it survives a restore.
func (c *Client) Key() string { return c.key }

func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if err := c.svc.allow(ctx, scopeSignIn, email); err != nil {
		return nil, err
	}

	acc, err := c.svc.dir.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if c.svc.requireConfirm && !acc.EmailConfirmed {
		return nil, domain.ErrEmailNotConfirmed
	}
	if err := c.svc.limiter.Reset(ctx, scopeSignIn, email); err != nil {
		c.svc.log.Warn().Err(err).Msg("failed to reset sign-in attempts")
	}

	return c.establish(&acc.Identity, domain.SessionSignedIn)
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	if err := c.svc.allow(ctx, scopeSignUp, normalizeEmail(email)); err != nil {
		return nil, err
	}
	id, err := c.svc.Register(ctx, email, password, metadata, !c.svc.requireConfirm)
	if err != nil {
		return nil, err
	}

	if c.svc.requireConfirm {
		if err := c.svc.sendConfirmation(ctx, id); err != nil {
			c.svc.log.Error().Err(err).Str("user_id", id.ID).Msg("failed to send confirmation email")
		}
		return id, nil
	}
	return c.establish(id, domain.SessionSignedIn)
}

// SignOut ends the session and revokes its access token. The local session
// is cleared even when the revocation fails. Signing out without a session
// is a no-op.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.identity == nil {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.identity = nil
	c.token = ""
	fns := c.listenersLocked()
	c.mu.Unlock()

	emit(fns, domain.SessionEvent{Type: domain.SessionSignedOut})
	if err := c.svc.revoke(ctx, token); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) GetSession(_ context.Context) (*domain.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.Clone(), nil
}

func (c *Client) OnSessionChange(fn func(domain.SessionEvent)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) UpdateMetadata(ctx context.Context, patch map[string]string) (*domain.Identity, error) {
	id, err := c.current()
	if err != nil {
		return nil, err
	}
	acc, err := c.svc.dir.UpdateMetadata(ctx, id.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update metadata: %w", err)
	}
	return c.replace(id.ID, &acc.Identity, domain.SessionUserUpdated), nil
}

func (c *Client) ResetPasswordEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := c.svc.allow(ctx, scopeReset, email); err != nil {
		return err
	}
	return c.svc.sendReset(ctx, email)
}

func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	id, err := c.current()
	if err != nil {
		return err
	}
	if len(newPassword) < c.svc.minPassword {
		return domain.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := c.svc.dir.UpdatePasswordHash(ctx, id.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	c.replace(id.ID, id, domain.SessionUserUpdated)
	return nil
}

func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Recover signs the client in with a password reset token so the password
// can then be changed with UpdatePassword. It confirms the email as well.
func (c *Client) Recover(ctx context.Context, resetToken string) (*domain.Identity, error) {
	userID, err := c.svc.tokens.Consume(ctx, purposeReset, resetToken)
	if err != nil {
		return nil, err
	}
	acc, err := c.svc.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recover session: %w", err)
	}
	if !acc.EmailConfirmed {
		if err := c.svc.dir.ConfirmEmail(ctx, userID); err != nil {
			c.svc.log.Warn().Err(err).Str("user_id", userID).Msg("failed to confirm email on recovery")
		} else {
			acc.EmailConfirmed = true
		}
	}
	return c.establish(&acc.Identity, domain.SessionSignedIn)
}

// Refresh reloads the identity, issues a new access token and revokes the
// previous one.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	id, err := c.current()
	if err != nil {
		return "", err
	}
	acc, err := c.svc.dir.FindByID(ctx, id.ID)
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	old := c.AccessToken()
	if _, err := c.establish(&acc.Identity, domain.SessionTokenRefreshed); err != nil {
		return "", err
	}
	if err := c.svc.revoke(ctx, old); err != nil {
		c.svc.log.Warn().Err(err).Str("user_id", id.ID).Msg("failed to revoke rotated token")
	}
	return c.AccessToken(), nil
}

func (c *Client) current() (*domain.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil, domain.ErrNoSession
	}
	return c.identity.Clone(), nil
}

// establish stores id with a fresh token and emits typ.
func (c *Client) establish(id *domain.Identity, typ domain.SessionEventType) (*domain.Identity, error) {
	token, err := c.svc.signer.Sign(id, c.key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.identity = id.Clone()
	c.token = token
	fns := c.listenersLocked()
	c.mu.Unlock()

	emit(fns, domain.SessionEvent{Type: typ, Identity: id.Clone()})
	return id.Clone(), nil
}

// replace swaps in an updated identity if the session still belongs to
// userID, then emits typ.
func (c *Client) replace(userID string, id *domain.Identity, typ domain.SessionEventType) *domain.Identity {
	c.mu.Lock()
	if c.identity == nil || c.identity.ID != userID {
		c.mu.Unlock()
		return id.Clone()
	}
	c.identity = id.Clone()
	fns := c.listenersLocked()
	c.mu.Unlock()

	emit(fns, domain.SessionEvent{Type: typ, Identity: id.Clone()})
	return id.Clone()
}

func (c *Client) listenersLocked() []func(domain.SessionEvent) {
	fns := make([]func(domain.SessionEvent), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func emit(fns []func(domain.SessionEvent), ev domain.SessionEvent) {
	for _, fn := range fns {
		fn(ev)
	}
}
