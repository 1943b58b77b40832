package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/eventplanner/planner/docs"
	"github.com/eventplanner/planner/internal/api/handler"
	"github.com/eventplanner/planner/internal/api/middleware"
	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/guard"
	"github.com/eventplanner/planner/internal/core/ports"
	"github.com/eventplanner/planner/pkg/logger"
)

// Sessions is the session registry as seen by the HTTP layer.
type Sessions interface {
	handler.SessionRegistry
	middleware.SessionLookup
}

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Sessions      Sessions
	Confirmer     handler.EmailConfirmer
	Vendors       ports.VendorRepository
	Health        map[string]handler.Pinger
	Log           zerolog.Logger
	SecureCookies bool
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddleware("planner"))
	e.Use(middleware.Auth(deps.Sessions))

	// --- Infrastructure ---
	healthHandler := handler.NewHealthHandler(deps.Health)

	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.Sessions, deps.Confirmer, deps.SecureCookies)

	auth := e.Group("/auth")
	auth.POST("/signin", authHandler.SignIn)
	auth.POST("/signup", authHandler.SignUp)
	auth.GET("/session", authHandler.Session)
	auth.GET("/confirm", authHandler.Confirm)
	auth.POST("/password/reset", authHandler.ResetPassword)
	auth.POST("/password/recover", authHandler.Recover)

	requireSession := middleware.RequireSession()
	auth.POST("/signout", authHandler.SignOut, requireSession)
	auth.POST("/refresh", authHandler.Refresh, requireSession)
	auth.PUT("/password", authHandler.UpdatePassword, requireSession)

	// --- Role-scoped views ---
	viewHandler := handler.NewViewHandler(deps.Vendors, deps.Log)

	e.GET("/dashboard", viewHandler.Dashboard, middleware.Guard(guard.New(domain.RoleOrganizer)))
	e.GET("/vendor/dashboard", viewHandler.VendorDashboard, middleware.Guard(guard.New(domain.RoleVendor)))
	e.GET("/admin", viewHandler.Admin, middleware.Guard(guard.New(domain.RoleAdmin)))

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	log = logger.WithComponent(log, "http")
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
