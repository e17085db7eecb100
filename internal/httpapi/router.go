package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/permission"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Engine *authcore.Engine
	// Limiter throttles POST /auth/login. Nil disables throttling.
	Limiter rate.Limiter
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Health reports backend readiness for GET /health. Nil always reports ok.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

type api struct {
	engine   *authcore.Engine
	limiter  rate.Limiter
	health   func(ctx context.Context) error
	logger   *slog.Logger
	validate *validator.Validate
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &api{
		engine:   deps.Engine,
		limiter:  deps.Limiter,
		health:   deps.Health,
		logger:   logger.With("component", "httpapi"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(recoverer(a.logger))
	r.Use(requestLogger(a.logger))
	r.Use(middleware.ClientInfo)

	r.Get("/health", a.handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/refresh", a.handleRefresh)
			r.With(middleware.Authenticate(a.engine)).Post("/logout", a.handleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(a.engine))

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", a.handleMe)
				r.Put("/", a.handleUpdateMe)
				r.Delete("/", a.handleDeactivateMe)
				r.Put("/password", a.handleChangePassword)
			})

			r.With(
				middleware.Require(a.engine, authcore.Active()),
				middleware.RequireRole(a.engine, authcore.RoleAdmin),
			).Get("/admin/stats", a.handleStats)

			r.Route("/admin/users", func(r chi.Router) {
				r.Use(middleware.Require(a.engine, authcore.Active()))

				r.With(middleware.RequirePermission(a.engine, permission.ManageUsers)).Get("/", a.handleListUsers)
				r.Route("/{id}", func(r chi.Router) {
					r.With(middleware.RequirePermission(a.engine, permission.ManageUsers)).Get("/", a.handleGetUser)
					r.With(middleware.RequireRole(a.engine, authcore.RoleAdmin)).Put("/", a.handleUpdateUser)
					r.With(middleware.RequirePermission(a.engine, permission.ManageUsers)).Put("/active", a.handleSetActive)
					r.With(middleware.RequirePermission(a.engine, permission.ManageUsers)).Post("/verify", a.handleVerify)
					r.With(middleware.RequireRole(a.engine, authcore.RoleAdmin)).Post("/unlock", a.handleUnlock)
				})
			})
		})
	})

	return r
}
