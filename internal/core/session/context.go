// Package session holds the single source of truth for who is signed in,
// which role they hold and whether that answer is still being computed.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
	"github.com/eventplanner/planner/internal/core/resolver"
	"github.com/eventplanner/planner/internal/pkg/metrics"
	"github.com/eventplanner/planner/pkg/logger"
)

const (
	defaultMinPasswordLength = 6
	defaultSignUpSpacing     = 1500 * time.Millisecond
)

var (
	errRecoveryUnsupported = errors.New("credential store cannot recover sessions")
	errRefreshUnsupported  = errors.New("credential store cannot refresh tokens")
)

// RoleResolver is the resolver contract the context drives.
type RoleResolver interface {
	Resolve(ctx context.Context, id *domain.Identity, opts ...resolver.Option) resolver.Result
}

// State is a snapshot of the session. Identity is nil when signed out.
type State struct {
	Identity *domain.Identity
	Role     domain.Role
	Loading  bool
}

// Authenticated reports whether the snapshot carries an identity.
func (s State) Authenticated() bool { return s.Identity != nil }

// AuthResult is returned by SignIn and SignUp. Message is safe to show to
// the user; Err is the underlying cause.
type AuthResult struct {
	Success bool
	Role    domain.Role
	Message string
	Err     error
}

// SignUpInput carries the registration form.
type SignUpInput struct {
	Email       string
	Password    string
	Role        domain.Role
	FirstName   string
	LastName    string
	CompanyName string
	VendorType  string
}

// Config wires a Context to its collaborators.
type Config struct {
	Credentials       ports.CredentialStore
	Repo              ports.RoleRepository
	Cache             ports.RoleCache
	Feed              ports.ChangeFeed
	Resolver          RoleResolver
	MinPasswordLength int
	SignUpSpacing     time.Duration
}

// Context owns one client's session state and its subscriptions to the
// credential store and the change feed. Every resolution is tagged with a
// sequence number; only the most recently started one may write state.
type Context struct {
	creds    ports.CredentialStore
	repo     ports.RoleRepository
	cache    ports.RoleCache
	feed     ports.ChangeFeed
	resolver RoleResolver
	log      zerolog.Logger

	minPassword   int
	signUpSpacing time.Duration
	now           func() time.Time

	mu           sync.Mutex
	state        State
	latest       uint64
	closed       bool
	lastSignUp   time.Time
	listeners    map[int]func(State)
	nextListener int

	subMu       sync.Mutex
	watchingID  string
	subs        []ports.Subscription
	unsubscribe func()
}

// New creates a Context in the loading state and subscribes it to the
// credential store. Call Start to resolve the initial session.
func New(cfg Config, log zerolog.Logger) *Context {
	minPassword := cfg.MinPasswordLength
	if minPassword <= 0 {
		minPassword = defaultMinPasswordLength
	}
	spacing := cfg.SignUpSpacing
	if spacing <= 0 {
		spacing = defaultSignUpSpacing
	}
	c := &Context{
		creds:         cfg.Credentials,
		repo:          cfg.Repo,
		cache:         cfg.Cache,
		feed:          cfg.Feed,
		resolver:      cfg.Resolver,
		log:           logger.WithComponent(log, "session"),
		minPassword:   minPassword,
		signUpSpacing: spacing,
		now:           time.Now,
		state:         State{Loading: true},
		listeners:     make(map[int]func(State)),
	}
	c.unsubscribe = c.creds.OnSessionChange(c.onSessionEvent)
	return c
}

// Start resolves the session the credential store already holds, if any.
func (c *Context) Start(ctx context.Context) State {
	st, err := c.CurrentSession(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load current session")
	}
	return st
}

// CurrentSession returns a terminal snapshot: authenticated with a role, or
// unauthenticated. It runs at most one resolution pass.
func (c *Context) CurrentSession(ctx context.Context) (State, error) {
	if st := c.Snapshot(); !st.Loading {
		return st, nil
	}
	identity, err := c.creds.GetSession(ctx)
	if err != nil {
		c.reset()
		return c.Snapshot(), fmt.Errorf("get session: %w", err)
	}
	if identity == nil {
		c.reset()
		return c.Snapshot(), nil
	}
	res := c.refresh(ctx, identity)
	return State{Identity: res.Identity.Clone(), Role: res.Role}, nil
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Context) snapshotLocked() State {
	st := c.state
	st.Identity = st.Identity.Clone()
	return st
}

// Subscribe registers fn for every state change and returns a function that
// removes it.
func (c *Context) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// AccessToken returns the bearer token of the current credential session.
func (c *Context) AccessToken() string {
	return c.creds.AccessToken()
}

// SignIn authenticates and resolves the role. A rejected sign-in leaves the
// current state untouched.
func (c *Context) SignIn(ctx context.Context, email, password string) AuthResult {
	before := c.sequence()
	identity, err := c.creds.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("sign_in", failureReason(err)).Inc()
		c.log.Info().Err(err).Str("email", email).Msg("sign in rejected")
		return AuthResult{Message: signInMessage(err), Err: err}
	}
	metrics.AuthAttemptsTotal.WithLabelValues("sign_in", "ok").Inc()

	return AuthResult{Success: true, Role: c.settle(ctx, before, identity)}
}

// SignUp registers a new identity, remembers the requested role as pending
// for it and creates the profile (and vendor record for vendors). When the
// store signs the identity in and its resolution already landed, there is
// nothing left pending.
func (c *Context) SignUp(ctx context.Context, in SignUpInput) AuthResult {
	role := in.Role
	if role == "" {
		role = domain.DefaultRole
	}
	if role != domain.RoleOrganizer && role != domain.RoleVendor {
		return c.signUpRejected(domain.ErrInvalidRole)
	}
	if len(in.Password) < c.minPassword {
		return c.signUpRejected(domain.ErrWeakPassword)
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastSignUp.IsZero() && now.Sub(c.lastSignUp) < c.signUpSpacing {
		c.mu.Unlock()
		return c.signUpRejected(domain.ErrSignUpThrottled)
	}
	c.lastSignUp = now
	c.mu.Unlock()

	email := strings.TrimSpace(in.Email)
	metadata := map[string]string{
		domain.MetadataRoleKey: string(role),
		"first_name":           in.FirstName,
		"last_name":            in.LastName,
	}
	if role == domain.RoleVendor {
		metadata["company_name"] = in.CompanyName
		metadata["vendor_type"] = in.VendorType
	}

	before := c.sequence()
	identity, err := c.creds.SignUp(ctx, email, in.Password, metadata)
	if err != nil {
		return c.signUpRejected(err)
	}
	metrics.AuthAttemptsTotal.WithLabelValues("sign_up", "ok").Inc()

	if _, resolved := c.settled(before, identity.ID); !resolved {
		pending := resolver.PendingRoleValue(identity.ID, role)
		if err := c.cache.Set(ctx, resolver.PendingRoleKey, pending); err != nil {
			c.log.Warn().Err(err).Str("user_id", identity.ID).Msg("failed to store pending role")
		}
	}
	c.createRecords(ctx, identity, in, role)

	current, err := c.creds.GetSession(ctx)
	if err != nil || current == nil || current.ID != identity.ID {
		// Email confirmation pending; the role is resolved on first sign-in.
		return AuthResult{Success: true, Role: role, Message: "Check your email to confirm your account."}
	}
	return AuthResult{Success: true, Role: c.settle(ctx, before, current)}
}

func (c *Context) signUpRejected(err error) AuthResult {
	metrics.AuthAttemptsTotal.WithLabelValues("sign_up", failureReason(err)).Inc()
	return AuthResult{Message: c.signUpMessage(err), Err: err}
}

// createRecords writes the profile and vendor record of a fresh identity.
// Failures are logged only: the pending role still drives the first resolution.
func (c *Context) createRecords(ctx context.Context, identity *domain.Identity, in SignUpInput, role domain.Role) {
	now := c.now().UTC()
	err := c.repo.CreateProfile(ctx, &domain.Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		Role:      role,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, domain.ErrUserExists) {
		err = c.repo.UpdateProfileRole(ctx, identity.ID, role)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", identity.ID).Msg("failed to create profile")
	}

	if role != domain.RoleVendor {
		return
	}
	exists, err := c.repo.VendorExists(ctx, identity.ID)
	if err == nil && !exists {
		company := in.CompanyName
		if company == "" {
			company = identity.Email
		}
		err = c.repo.CreateVendor(ctx, &domain.VendorRecord{
			UserID:      identity.ID,
			CompanyName: company,
			VendorType:  in.VendorType,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", identity.ID).Msg("failed to create vendor record")
	}
}

// SignOut ends the credential session, clears the client role caches and
// resets the state. Local state is cleared even when the store fails.
func (c *Context) SignOut(ctx context.Context) error {
	err := c.creds.SignOut(ctx)
	for _, key := range []string{resolver.PendingRoleKey, resolver.ResolvedRoleKey} {
		if rmErr := c.cache.Remove(ctx, key); rmErr != nil {
			c.log.Warn().Err(rmErr).Str("key", key).Msg("failed to clear role cache")
		}
	}
	c.reset()
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("sign_out", "error").Inc()
		return fmt.Errorf("sign out: %w", err)
	}
	metrics.AuthAttemptsTotal.WithLabelValues("sign_out", "ok").Inc()
	return nil
}

// ResetPassword asks the credential store to email a reset link.
func (c *Context) ResetPassword(ctx context.Context, email string) error {
	err := c.creds.ResetPasswordEmail(ctx, strings.TrimSpace(email))
	metrics.AuthAttemptsTotal.WithLabelValues("reset_password", failureReason(err)).Inc()
	return err
}

// UpdatePassword changes the password of the signed-in identity.
func (c *Context) UpdatePassword(ctx context.Context, newPassword string) error {
	err := c.creds.UpdatePassword(ctx, newPassword)
	metrics.AuthAttemptsTotal.WithLabelValues("update_password", failureReason(err)).Inc()
	return err
}

// Recover starts a session from a password reset token and resolves its role.
func (c *Context) Recover(ctx context.Context, resetToken string) AuthResult {
	r, ok := c.creds.(ports.SessionRecoverer)
	if !ok {
		return AuthResult{Message: "Password recovery is not available.", Err: errRecoveryUnsupported}
	}
	before := c.sequence()
	identity, err := r.Recover(ctx, resetToken)
	metrics.AuthAttemptsTotal.WithLabelValues("recover", failureReason(err)).Inc()
	if err != nil {
		return AuthResult{Message: "This reset link is invalid or has expired.", Err: err}
	}
	return AuthResult{Success: true, Role: c.settle(ctx, before, identity)}
}

// RefreshToken rotates the access token. The store reports the rotation as
// token_refreshed, which re-resolves the role.
func (c *Context) RefreshToken(ctx context.Context) (string, error) {
	r, ok := c.creds.(ports.TokenRefresher)
	if !ok {
		return "", errRefreshUnsupported
	}
	return r.Refresh(ctx)
}

// Close unsubscribes from every feed and discards any resolution in flight.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.latest++
	c.listeners = make(map[int]func(State))
	c.mu.Unlock()

	c.subMu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.subMu.Unlock()
	c.syncWatch()
}

// settle returns the role of identity after a credential call that started
// a session. If the store announced it and that resolution has landed, its
// result stands: resolving again with the identity the call returned would
// read metadata from before the write-back and undo a consumed pending role.
func (c *Context) settle(ctx context.Context, before uint64, identity *domain.Identity) domain.Role {
	if st, ok := c.settled(before, identity.ID); ok {
		return st.Role
	}
	fresh := identity
	if current, err := c.creds.GetSession(ctx); err == nil && current != nil && current.ID == identity.ID {
		fresh = current
	}
	return c.refresh(ctx, fresh).Role
}

// settled reports whether a resolution started after before has been applied
// for userID.
func (c *Context) settled(before uint64, userID string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == before || c.state.Loading || c.state.Identity == nil || c.state.Identity.ID != userID {
		return State{}, false
	}
	return c.snapshotLocked(), true
}

func (c *Context) sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// refresh runs one tagged resolution and applies it if it is still the latest.
func (c *Context) refresh(ctx context.Context, identity *domain.Identity, opts ...resolver.Option) resolver.Result {
	seq, ok := c.begin()
	if !ok {
		return resolver.Result{Role: domain.DefaultRole, Identity: identity.Clone()}
	}
	res := c.resolver.Resolve(ctx, identity, opts...)
	if res.Err != nil {
		c.log.Warn().Err(res.Err).Str("user_id", identity.ID).Msg("role resolution degraded to default")
	}
	c.apply(seq, res)
	return res
}

func (c *Context) begin() (uint64, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, false
	}
	c.latest++
	seq := c.latest
	c.state.Loading = true
	st, fns := c.snapshotLocked(), c.listenersLocked()
	c.mu.Unlock()

	notify(fns, st)
	return seq, true
}

func (c *Context) apply(seq uint64, res resolver.Result) {
	c.mu.Lock()
	if c.closed || seq != c.latest {
		c.mu.Unlock()
		metrics.StaleResolutionsTotal.Inc()
		c.log.Debug().Uint64("seq", seq).Msg("discarding superseded resolution")
		return
	}
	c.state = State{Identity: res.Identity.Clone(), Role: res.Role}
	st, fns := c.snapshotLocked(), c.listenersLocked()
	c.mu.Unlock()

	c.syncWatch()
	notify(fns, st)
}

// reset clears the state and discards any resolution in flight.
func (c *Context) reset() {
	c.mu.Lock()
	c.latest++
	c.state = State{}
	st, fns := c.snapshotLocked(), c.listenersLocked()
	c.mu.Unlock()

	c.syncWatch()
	notify(fns, st)
}

func (c *Context) listenersLocked() []func(State) {
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st)
	}
}

// syncWatch binds the record subscriptions to the identity currently held
// in state, dropping them when signed out or closed.
func (c *Context) syncWatch() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	userID := ""
	if !c.closed && c.state.Identity != nil {
		userID = c.state.Identity.ID
	}
	c.mu.Unlock()

	if userID == c.watchingID {
		return
	}
	for _, s := range c.subs {
		s.Unsubscribe()
	}
	c.subs = nil
	c.watchingID = userID
	if userID == "" || c.feed == nil {
		return
	}

	filters := []struct{ table, column string }{
		{domain.TableProfiles, "id"},
		{domain.TableVendors, "user_id"},
		{domain.TableAdmins, "user_id"},
	}
	for _, f := range filters {
		sub, err := c.feed.Subscribe(f.table, f.column, userID, c.onRecordChange)
		if err != nil {
			c.log.Warn().Err(err).Str("table", f.table).Str("user_id", userID).Msg("change subscription failed")
			continue
		}
		c.subs = append(c.subs, sub)
	}
}

func (c *Context) onSessionEvent(ev domain.SessionEvent) {
	switch ev.Type {
	case domain.SessionSignedOut:
		c.reset()
	case domain.SessionSignedIn, domain.SessionUserUpdated, domain.SessionTokenRefreshed:
		if ev.Identity == nil {
			return
		}
		c.refresh(context.Background(), ev.Identity)
	}
}

// onRecordChange re-resolves after an out-of-band change to the profile,
// vendor or admin record of the current identity.
func (c *Context) onRecordChange(ev domain.ChangeEvent) {
	st := c.Snapshot()
	if st.Identity == nil || ev.Key() != st.Identity.ID {
		return
	}
	c.log.Debug().Str("table", ev.Table).Str("op", string(ev.Op)).Msg("record changed, re-resolving role")
	c.refresh(context.Background(), st.Identity, resolver.WithRefresh())
}

func signInMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return "Please confirm your email address before signing in."
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUserNotFound):
		return "Invalid email or password."
	case errors.Is(err, domain.ErrRateLimited):
		return "Too many attempts. Please wait a moment and try again."
	default:
		return "Sign in failed. Please try again."
	}
}

func (c *Context) signUpMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrWeakPassword):
		return fmt.Sprintf("Password must be at least %d characters.", c.minPassword)
	case errors.Is(err, domain.ErrSignUpThrottled), errors.Is(err, domain.ErrRateLimited):
		return "Please wait a moment before trying again."
	case errors.Is(err, domain.ErrUserExists):
		return "An account with this email already exists."
	case errors.Is(err, domain.ErrInvalidRole):
		return "Choose either the organizer or the vendor role."
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Enter a valid email address."
	default:
		return "Sign up failed. Please try again."
	}
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return "unconfirmed"
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUserNotFound):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrSignUpThrottled):
		return "rate_limited"
	case errors.Is(err, domain.ErrWeakPassword), errors.Is(err, domain.ErrInvalidRole), errors.Is(err, domain.ErrInvalidEmail):
		return "invalid_input"
	case errors.Is(err, domain.ErrUserExists):
		return "exists"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrNoSession):
		return "no_session"
	default:
		return "error"
	}
}
