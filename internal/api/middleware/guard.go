package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventplanner/planner/internal/core/guard"
	"github.com/eventplanner/planner/internal/core/session"
)

// Guard admits navigations the guard authorizes and redirects the rest:
// unauthenticated ones to sign-in, unauthorized ones to the role's landing view.
func Guard(g *guard.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var st session.State
			if sc, _ := SessionFrom(c); sc != nil {
				// A load failure still yields a terminal, signed-out state.
				st, _ = sc.CurrentSession(c.Request().Context())
			}

			d := g.Evaluate(st, c.Request().URL.RequestURI())
			switch d.State {
			case guard.StateAuthorized:
				return next(c)
			case guard.StateChecking:
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session is loading")
			default:
				return c.Redirect(http.StatusSeeOther, d.Redirect)
			}
		}
	}
}
