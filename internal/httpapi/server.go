// Package httpapi exposes role checks, profile access and health reporting over JSON/HTTP.
package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

// ServiceInfo is the static metadata served by /api/info and /api/health.
type ServiceInfo struct {
	Name        string
	Version     string
	Description string
	Environment string
}

// Deps are the handles the router needs. All are built once at startup.
type Deps struct {
	Logger    *slog.Logger
	Verifier  identity.Verifier
	Directory identity.Directory
	Store     roles.Store
	Resolver  *roles.Resolver
	Cursor    *CursorCodec
	Info      ServiceInfo

	Production  bool
	CORSOrigins []string
	RateLimit   int // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
	StartedAt   time.Time
}

type server struct {
	logger     *slog.Logger
	verifier   identity.Verifier
	directory  identity.Directory
	store      roles.Store
	resolver   *roles.Resolver
	gate       roles.Gate
	cursor     *CursorCodec
	validate   *validator.Validate
	info       ServiceInfo
	production bool
	startedAt  time.Time
}

// New builds the router.
func New(deps Deps) (http.Handler, error) {
	switch {
	case deps.Verifier == nil:
		return nil, errors.New("httpapi: nil verifier")
	case deps.Directory == nil:
		return nil, errors.New("httpapi: nil directory")
	case deps.Store == nil:
		return nil, errors.New("httpapi: nil role store")
	case deps.Resolver == nil:
		return nil, errors.New("httpapi: nil resolver")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cursor := deps.Cursor
	if cursor == nil {
		cursor = NewCursorCodec(nil, nil)
	}
	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	s := &server{
		logger:     logger,
		verifier:   deps.Verifier,
		directory:  deps.Directory,
		store:      deps.Store,
		resolver:   deps.Resolver,
		gate:       roles.Gate{Resolver: deps.Resolver},
		cursor:     cursor,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		info:       deps.Info,
		production: deps.Production,
		startedAt:  startedAt,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(s.recoverer)
	r.Use(instrument)
	r.Use(securityHeaders(deps.Production))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", HeaderRequestID},
			ExposedHeaders:   []string{HeaderRequestID},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if deps.RateLimit > 0 {
		window := deps.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.Limit(deps.RateLimit, window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(s.rateLimited),
		))
	}

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/info", s.serviceInfo)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/check-roles", s.checkRoles)
			r.Get("/check-supplier", s.checkSupplier)
			r.Get("/check-admin", s.checkAdmin)

			r.Get("/user/profile", s.profile)
			r.Put("/user/update", s.updateProfile)

			r.With(s.requireAdmin).Get("/admin/users", s.listUsers)
			r.With(s.requireSupplier).Get("/supplier/me", s.supplierMe)
		})
	})

	return r, nil
}

var endpoints = []string{
	"GET /api/health",
	"GET /api/info",
	"GET /api/check-roles",
	"GET /api/check-supplier",
	"GET /api/check-admin",
	"GET /api/user/profile",
	"PUT /api/user/update",
	"GET /api/admin/users",
	"GET /api/supplier/me",
}
