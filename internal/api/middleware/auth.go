package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/session"
)

// Cookie names.
const (
	SessionCookie = "planner_session"
	ClientCookie  = "planner_client"
)

const (
	keySession = "session"
	keyToken   = "token"
)

// SessionLookup resolves an access token to its session context.
type SessionLookup interface {
	Lookup(ctx context.Context, token string) (*session.Context, error)
}

// Auth attaches the session context named by the bearer token or the
// session cookie. Requests without a valid token pass through
// unauthenticated; use RequireSession or Guard to reject them.
func Auth(sessions SessionLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, fromCookie := accessToken(c.Request())
			if token == "" {
				return next(c)
			}

			sc, err := sessions.Lookup(c.Request().Context(), token)
			switch {
			case errors.Is(err, domain.ErrInvalidToken):
				if fromCookie {
					ClearCookie(c, SessionCookie)
				}
				return next(c)
			case err != nil:
				return err
			}

			c.Set(keySession, sc)
			c.Set(keyToken, token)
			return next(c)
		}
	}
}

// RequireSession rejects requests that carry no signed-in session.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sc, _ := SessionFrom(c)
			if sc == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			st, err := sc.CurrentSession(c.Request().Context())
			if err != nil {
				return err
			}
			if !st.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// SessionFrom returns the session context attached by Auth and its token.
func SessionFrom(c echo.Context) (*session.Context, string) {
	sc, _ := c.Get(keySession).(*session.Context)
	token, _ := c.Get(keyToken).(string)
	return sc, token
}

// SetCookie stores value in an HTTP-only cookie.
func SetCookie(c echo.Context, name, value string, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the named cookie.
func ClearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

func accessToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1]), false
		}
	}
	if ck, err := r.Cookie(SessionCookie); err == nil {
		return ck.Value, true
	}
	return "", false
}
