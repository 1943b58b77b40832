// Package guard gates role-scoped views behind the session state. A rejected
// navigation is corrected with a redirect, never shown as an error.
package guard

import (
	"net/url"
	"sync"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/session"
	"github.com/eventplanner/planner/internal/pkg/metrics"
)

// DefaultSignInPath is where unauthenticated navigations are sent.
const DefaultSignInPath = "/signin"

// RedirectParam carries the originally requested path to the sign-in view.
const RedirectParam = "redirect"

// State is the guard's view of a navigation.
type State string

const (
	StateChecking        State = "checking"
	StateUnauthenticated State = "unauthenticated"
	StateAuthorized      State = "authorized"
	StateUnauthorized    State = "unauthorized"
)

// Decision is the outcome for one navigation. Redirect is set for the
// unauthenticated and unauthorized states only.
type Decision struct {
	State    State
	Redirect string
}

// Render reports whether the guarded view may be shown.
func (d Decision) Render() bool { return d.State == StateAuthorized }

// Guard holds the role set required by a view.
type Guard struct {
	required   map[domain.Role]struct{}
	signInPath string
}

// New returns a Guard admitting any of roles. With no roles, any
// authenticated session is admitted.
func New(roles ...domain.Role) *Guard {
	g := &Guard{
		required:   make(map[domain.Role]struct{}, len(roles)),
		signInPath: DefaultSignInPath,
	}
	for _, r := range roles {
		g.required[r] = struct{}{}
	}
	return g
}

// WithSignInPath overrides the sign-in view.
func (g *Guard) WithSignInPath(path string) *Guard {
	g.signInPath = path
	return g
}

// Allows reports whether role satisfies the guard.
func (g *Guard) Allows(role domain.Role) bool {
	if len(g.required) == 0 {
		return role.Valid()
	}
	_, ok := g.required[role]
	return ok
}

// Evaluate decides what to do with a navigation to requestedPath.
func (g *Guard) Evaluate(st session.State, requestedPath string) Decision {
	d := g.evaluate(st, requestedPath)
	metrics.GuardDecisionsTotal.WithLabelValues(string(d.State)).Inc()
	return d
}

func (g *Guard) evaluate(st session.State, requestedPath string) Decision {
	switch {
	case st.Loading:
		return Decision{State: StateChecking}
	case !st.Authenticated():
		return Decision{State: StateUnauthenticated, Redirect: g.SignInURL(requestedPath)}
	case !g.Allows(st.Role):
		return Decision{State: StateUnauthorized, Redirect: st.Role.LandingPath()}
	default:
		return Decision{State: StateAuthorized}
	}
}

// SignInURL returns the sign-in view remembering requestedPath.
func (g *Guard) SignInURL(requestedPath string) string {
	if requestedPath == "" {
		return g.signInPath
	}
	return g.signInPath + "?" + url.Values{RedirectParam: {requestedPath}}.Encode()
}

// Source is the session state a Gate follows.
type Source interface {
	Snapshot() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Navigator performs the guard's decisions.
type Navigator interface {
	Wait()
	Render(path string)
	Redirect(to string)
}

// Gate applies a Guard to one mounted view, re-evaluating on every session
// update and acting once per distinct decision. A redirect is terminal: the
// view is gone, so the gate unsubscribes and ignores later updates. Once
// content has rendered, a transient checking state keeps it mounted.
type Gate struct {
	guard *Guard
	path  string
	nav   Navigator

	mu          sync.Mutex
	last        Decision
	acted       bool
	rendered    bool
	done        bool
	unsubscribe func()
}

// Watch mounts a Gate for path on src.
func Watch(src Source, g *Guard, path string, nav Navigator) *Gate {
	gate := &Gate{guard: g, path: path, nav: nav}
	unsubscribe := src.Subscribe(gate.update)
	gate.mu.Lock()
	gate.unsubscribe = unsubscribe
	gate.mu.Unlock()
	gate.update(src.Snapshot())
	return gate
}

func (gt *Gate) update(st session.State) {
	d := gt.guard.Evaluate(st, gt.path)

	gt.mu.Lock()
	if gt.done || (gt.acted && d == gt.last) {
		gt.mu.Unlock()
		return
	}
	if d.State == StateChecking && gt.rendered {
		gt.mu.Unlock()
		return
	}
	gt.last, gt.acted = d, true
	switch d.State {
	case StateAuthorized:
		gt.rendered = true
	case StateUnauthenticated, StateUnauthorized:
		gt.done = true
	}
	gt.mu.Unlock()

	switch d.State {
	case StateChecking:
		gt.nav.Wait()
	case StateAuthorized:
		gt.nav.Render(gt.path)
	default:
		gt.nav.Redirect(d.Redirect)
		gt.Stop()
	}
}

// Decision returns the last decision taken.
func (gt *Gate) Decision() Decision {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	return gt.last
}

// Stop unmounts the gate. It is safe to call more than once.
func (gt *Gate) Stop() {
	gt.mu.Lock()
	gt.done = true
	unsubscribe := gt.unsubscribe
	gt.unsubscribe = nil
	gt.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
