// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lrbcloud/taskloop/internal/api/handlers"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
)

// RouterConfig contains configuration for setting up routes.
type RouterConfig struct {
	// Validator checks access tokens. Required for authenticated routes.
	Validator middleware.ClaimsValidator

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration

	// Logger for request logging.
	Logger middleware.RequestLogger

	// EnableDebugLogging enables verbose request logging.
	EnableDebugLogging bool
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig(validator middleware.ClaimsValidator) RouterConfig {
	return RouterConfig{
		Validator:          validator,
		CORSConfig:         middleware.DefaultCORSConfig(),
		RequestTimeout:     30 * time.Second,
		EnableDebugLogging: false,
	}
}

// Handlers contains all API handlers.
// All fields are optional - if nil, the corresponding routes won't be mounted.
type Handlers struct {
	System     *handlers.SystemHandler
	WebSocket  *handlers.WebSocketHandler
	Auth       *handlers.AuthHandler
	Tenant     *handlers.TenantHandler
	Employee   *handlers.EmployeeHandler
	Checklist  *handlers.ChecklistHandler
	Delegation *handlers.DelegationHandler
	Ticket     *handlers.TicketHandler
	Analytics  *handlers.AnalyticsHandler
	Export     *handlers.ExportHandler
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(config RouterConfig, h *Handlers) chi.Router {
	r := chi.NewRouter()

	// =========================================================================
	// Global Middleware (applied to all routes)
	// =========================================================================

	// Request ID (must be first)
	r.Use(middleware.RequestID)

	// Real IP extraction from proxy headers
	r.Use(middleware.RealIP)

	// Request logging
	if config.Logger != nil {
		if config.EnableDebugLogging {
			r.Use(middleware.DebugLogging(config.Logger))
		} else {
			r.Use(middleware.SimpleLogging(config.Logger))
		}
	}

	// Panic recovery
	r.Use(middleware.Recovery(middleware.RecoveryConfig{
		Logger:     config.Logger,
		PrintStack: true,
	}))

	// NOTE: chimiddleware.Timeout is NOT applied globally because it wraps
	// the ResponseWriter and removes http.Hijacker, breaking WebSocket upgrades.
	// Timeout is applied selectively to API routes below.

	// CORS
	r.Use(middleware.CORS(config.CORSConfig))

	requireAuth := middleware.Auth(middleware.AuthConfig{
		Validator:   config.Validator,
		TokenLookup: "header:Authorization,cookie:auth_token",
	})

	// =========================================================================
	// Health Check Routes (no auth required)
	// =========================================================================

	if h.System != nil {
		r.Get("/health", h.System.Health)
		r.Get("/healthz", h.System.Liveness)
		r.Get("/ready", h.System.Readiness)
	}

	// =========================================================================
	// API Routes
	// =========================================================================

	r.Route("/api/v1", func(r chi.Router) {
		// Apply timeout only to API routes (not globally, to preserve http.Hijacker for WebSocket)
		r.Use(chimiddleware.Timeout(config.RequestTimeout))

		// -----------------------------------------------------------------
		// Public routes (no authentication)
		// -----------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthRateLimit())

			// Auth endpoints (login, refresh, logout are public;
			// the handler guards /me internally)
			if h.Auth != nil {
				r.Mount("/auth", h.Auth.Routes(requireAuth))
			}

			// Public system info
			if h.System != nil {
				r.Get("/system/version", h.System.Version)
			}
		})

		// -----------------------------------------------------------------
		// Authenticated routes
		// -----------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			// Standard API rate limiting
			r.Use(middleware.APIRateLimit())

			// System detail (any member)
			if h.System != nil {
				r.Route("/system", func(r chi.Router) {
					r.Use(middleware.RequireMember)
					r.Get("/info", h.System.Info)
					r.Get("/health", h.System.Health)
					r.Get("/metrics", h.System.Metrics)
				})
			}

			// Tenant-facing resources. Role checks live inside each
			// handler's Routes() where per-method granularity is needed.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireMember)

				if h.Employee != nil {
					r.Mount("/employees", h.Employee.Routes())
				}
				if h.Checklist != nil {
					r.Mount("/checklists", h.Checklist.Routes())
				}
				if h.Delegation != nil {
					r.Mount("/delegations", h.Delegation.Routes())
				}
				if h.Ticket != nil {
					r.Mount("/tickets", h.Ticket.Routes())
				}
				if h.Analytics != nil {
					r.Mount("/analytics", h.Analytics.Routes())
				}
			})

			// Evidence export (coordinator+)
			if h.Export != nil {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireCoordinator)
					r.Mount("/export", h.Export.Routes())
				})
			}

			// Tenant administration (platform admins)
			if h.Tenant != nil {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Mount("/tenants", h.Tenant.Routes())
				})
			}
		})
	})

	// =========================================================================
	// WebSocket routes (at /api/v1/ws, outside timeout to preserve
	// http.Hijacker). Browsers cannot set headers on WebSocket connects, so
	// the token may also arrive as a query parameter.
	// =========================================================================
	if h.WebSocket != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.WebSocketRateLimit())
			r.Use(middleware.Auth(middleware.AuthConfig{
				Validator:   config.Validator,
				TokenLookup: "header:Authorization,query:token",
			}))
			r.Mount("/api/v1/ws", h.WebSocket.Routes())
		})
	}

	return r
}
