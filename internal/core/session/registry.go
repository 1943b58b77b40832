package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/pkg/metrics"
	"github.com/eventplanner/planner/pkg/logger"
)

const (
	defaultMaxSessions  = 10000
	defaultMaxAnonymous = 10000
	defaultIdleTimeout  = 24 * time.Hour
	sweepInterval       = time.Minute
)

// Factory builds a started Context. An empty token yields a signed-out
// context; a non-empty token restores the session it identifies.
type Factory func(ctx context.Context, token string) (*Context, error)

type entry struct {
	ctx      *Context
	lastSeen time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLimits caps the signed-in and signed-out pools. The least recently
// used context is evicted when a pool is full. Zero keeps the default.
func WithLimits(maxSessions, maxAnonymous int) RegistryOption {
	return func(r *Registry) {
		if maxSessions > 0 {
			r.maxSessions = maxSessions
		}
		if maxAnonymous > 0 {
			r.maxAnonymous = maxAnonymous
		}
	}
}

// WithIdleTimeout evicts contexts not used for d.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// Registry maps clients to live session contexts. Signed-in contexts are
// keyed by access token; signed-out ones by an opaque client id so that
// per-client state (such as sign-up spacing) survives between requests.
// A context is bound under at most one token. Both pools are bounded and
// idle contexts are closed.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	tokens    map[*Context]string
	anonymous map[string]*entry
	clients   map[*Context]string
	lastSweep time.Time

	maxSessions  int
	maxAnonymous int
	idleTimeout  time.Duration
	now          func() time.Time

	factory Factory
	log     zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(factory Factory, log zerolog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:     make(map[string]*entry),
		tokens:       make(map[*Context]string),
		anonymous:    make(map[string]*entry),
		clients:      make(map[*Context]string),
		maxSessions:  defaultMaxSessions,
		maxAnonymous: defaultMaxAnonymous,
		idleTimeout:  defaultIdleTimeout,
		now:          time.Now,
		factory:      factory,
		log:          logger.WithComponent(log, "session_registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the signed-out context of clientID, creating one (under a
// new client id) when clientID is unknown. The returned id must be handed
// back on the client's next request.
func (r *Registry) Open(ctx context.Context, clientID string) (*Context, string, error) {
	r.mu.Lock()
	if e, ok := r.anonymous[clientID]; ok && clientID != "" {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.ctx, clientID, nil
	}
	r.mu.Unlock()

	c, err := r.factory(ctx, "")
	if err != nil {
		return nil, "", err
	}
	id := uuid.NewString()

	r.mu.Lock()
	evicted := r.sweepLocked()
	if len(r.anonymous) >= r.maxAnonymous {
		evicted = append(evicted, r.evictLRULocked(r.anonymous, r.clients)...)
	}
	r.anonymous[id] = &entry{ctx: c, lastSeen: r.now()}
	r.clients[c] = id
	r.mu.Unlock()

	closeAll(evicted)
	return c, id, nil
}

// Bind registers c under its current access token and returns the token.
// A token c was bound under before is dropped. It reports false when c
// holds no credential session.
func (r *Registry) Bind(c *Context) (string, bool) {
	token := c.AccessToken()
	if token == "" {
		return "", false
	}

	r.mu.Lock()
	if id, ok := r.clients[c]; ok {
		delete(r.anonymous, id)
		delete(r.clients, c)
	}
	if old, ok := r.tokens[c]; ok {
		delete(r.sessions, old)
		delete(r.tokens, c)
	}
	var evicted []*Context
	if prev, ok := r.sessions[token]; ok && prev.ctx != c {
		delete(r.tokens, prev.ctx)
		evicted = append(evicted, prev.ctx)
	}
	evicted = append(evicted, r.sweepLocked()...)
	if _, ok := r.sessions[token]; !ok && len(r.sessions) >= r.maxSessions {
		evicted = append(evicted, r.evictLRULocked(r.sessions, r.tokens)...)
	}
	r.sessions[token] = &entry{ctx: c, lastSeen: r.now()}
	r.tokens[c] = token
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	closeAll(evicted)
	return token, true
}

// Rebind moves c from oldToken to its current access token, typically after
// a token refresh.
func (r *Registry) Rebind(oldToken string, c *Context) (string, bool) {
	r.mu.Lock()
	if e, ok := r.sessions[oldToken]; ok && e.ctx == c {
		delete(r.sessions, oldToken)
		delete(r.tokens, c)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()
	return r.Bind(c)
}

// Lookup returns the context bound to token, restoring it through the
// factory when this process has not seen the token yet.
func (r *Registry) Lookup(ctx context.Context, token string) (*Context, error) {
	r.mu.Lock()
	if e, ok := r.sessions[token]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.ctx, nil
	}
	r.mu.Unlock()

	restored, err := r.factory(ctx, token)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.sessions[token]; ok {
		existing.lastSeen = r.now()
		r.mu.Unlock()
		restored.Close()
		return existing.ctx, nil
	}
	evicted := r.sweepLocked()
	if len(r.sessions) >= r.maxSessions {
		evicted = append(evicted, r.evictLRULocked(r.sessions, r.tokens)...)
	}
	r.sessions[token] = &entry{ctx: restored, lastSeen: r.now()}
	r.tokens[restored] = token
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	closeAll(evicted)
	r.log.Debug().Msg("session restored from token")
	return restored, nil
}

// Release closes and forgets the context bound to token.
func (r *Registry) Release(token string) {
	r.mu.Lock()
	e, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
		delete(r.tokens, e.ctx)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	if ok {
		e.ctx.Close()
	}
}

// Close releases every context.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Context, 0, len(r.sessions)+len(r.anonymous))
	for _, e := range r.sessions {
		all = append(all, e.ctx)
	}
	for _, e := range r.anonymous {
		all = append(all, e.ctx)
	}
	r.sessions = make(map[string]*entry)
	r.tokens = make(map[*Context]string)
	r.anonymous = make(map[string]*entry)
	r.clients = make(map[*Context]string)
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	closeAll(all)
}

// Len returns the number of bound contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sweepLocked drops contexts idle for longer than the idle timeout, at most
// once per sweep interval. The caller closes the returned contexts.
func (r *Registry) sweepLocked() []*Context {
	now := r.now()
	if now.Sub(r.lastSweep) < sweepInterval {
		return nil
	}
	r.lastSweep = now

	var evicted []*Context
	for token, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.idleTimeout {
			delete(r.sessions, token)
			delete(r.tokens, e.ctx)
			evicted = append(evicted, e.ctx)
		}
	}
	for id, e := range r.anonymous {
		if now.Sub(e.lastSeen) > r.idleTimeout {
			delete(r.anonymous, id)
			delete(r.clients, e.ctx)
			evicted = append(evicted, e.ctx)
		}
	}
	if len(evicted) > 0 {
		metrics.SessionsEvictedTotal.WithLabelValues("idle").Add(float64(len(evicted)))
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
		r.log.Debug().Int("count", len(evicted)).Msg("idle sessions evicted")
	}
	return evicted
}

// evictLRULocked drops the least recently used entry of pool.
func (r *Registry) evictLRULocked(pool map[string]*entry, index map[*Context]string) []*Context {
	var oldest string
	var at time.Time
	for key, e := range pool {
		if oldest == "" || e.lastSeen.Before(at) {
			oldest, at = key, e.lastSeen
		}
	}
	e, ok := pool[oldest]
	if !ok {
		return nil
	}
	delete(pool, oldest)
	delete(index, e.ctx)
	metrics.SessionsEvictedTotal.WithLabelValues("capacity").Inc()
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return []*Context{e.ctx}
}

func closeAll(cs []*Context) {
	for _, c := range cs {
		c.Close()
	}
}
