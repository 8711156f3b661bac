// Copyright 2026 The ClaimDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/claimdesk/claimdesk/internal/access"
	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/claim"
	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/observability/metrics"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
	"github.com/claimdesk/claimdesk/internal/session"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// PingFunc checks one backing service for /health
type PingFunc func(ctx context.Context) error

// Deps are the services behind the HTTP API
type Deps struct {
	Pipeline    *access.Pipeline
	Limiter     *ratelimit.Limiter
	Users       *identity.Service
	Issuer      *session.Issuer
	Tenants     *tenant.Service
	Billing     *billing.Service
	Keys        *apikey.Service
	Claims      *claim.Service
	Recorder    *audit.Recorder
	AuditLog    audit.Repository
	Security    *logger.SecurityLogger
	HTTPMetrics *metrics.HTTPMetrics
	// Health maps a dependency name to its check
	Health map[string]PingFunc
}

// Config holds transport settings
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	LoginRPS       float64
	LoginBurst     int
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	pipeline    *access.Pipeline
	limiter     *ratelimit.Limiter
	users       *identity.Service
	issuer      *session.Issuer
	tenants     *tenant.Service
	billing     *billing.Service
	keys        *apikey.Service
	claims      *claim.Service
	recorder    *audit.Recorder
	auditLog    audit.Repository
	security    *logger.SecurityLogger
	httpMetrics *metrics.HTTPMetrics
	health      map[string]PingFunc
	login       *LoginThrottle
	cfg         Config
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps, cfg Config) *Handler {
	if deps.Security == nil {
		deps.Security = logger.NewSecurityLogger(nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.LoginRPS <= 0 {
		cfg.LoginRPS = 1
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 5
	}
	return &Handler{
		pipeline:    deps.Pipeline,
		limiter:     deps.Limiter,
		users:       deps.Users,
		issuer:      deps.Issuer,
		tenants:     deps.Tenants,
		billing:     deps.Billing,
		keys:        deps.Keys,
		claims:      deps.Claims,
		recorder:    deps.Recorder,
		auditLog:    deps.AuditLog,
		security:    deps.Security,
		httpMetrics: deps.HTTPMetrics,
		health:      deps.Health,
		login:       NewLoginThrottle(cfg.LoginRPS, cfg.LoginBurst),
		cfg:         cfg,
	}
}

// LoginThrottle exposes the per-IP login limiter so its sweeper can be run.
func (h *Handler) LoginThrottle() *LoginThrottle {
	return h.login
}

var (
	adminOnly  = []authz.Role{authz.RoleAdmin}
	adminStaff = []authz.Role{authz.RoleAdmin, authz.RoleStaff}
)

func policy(roles []authz.Role) access.Policy {
	return access.Policy{Requirement: authz.Requirement{Roles: roles}}
}

// bypass lets superadmins through without a membership
func bypass(roles []authz.Role) access.Policy {
	pol := policy(roles)
	pol.Requirement.AllowSuperadmin = true
	return pol
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(h.LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)
	if h.httpMetrics != nil {
		r.Method(http.MethodGet, "/metrics", h.httpMetrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Tenant-Slug"},
			ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Public
		r.Get("/billing/plans", h.ListPlans)
		r.With(h.login.Middleware(), h.PublicRateLimit).Post("/auth/login", h.Login)
		r.With(h.PublicRateLimit).Get("/tenants/{slug}/branding", h.PublicBranding)

		// Session only
		sessionOnly := access.Policy{NoTenant: true}
		r.With(h.Access(sessionOnly)).Get("/auth/me", h.Me)
		r.With(h.Access(sessionOnly), h.Audited(audit.ActionCreate, audit.ResourceTenant)).Post("/tenants", h.CreateTenant)
		r.With(h.Access(access.Policy{NoTenant: true, RequireSuperadmin: true})).Get("/tenants", h.ListTenants)

		r.Route("/tenants/{slug}", func(r chi.Router) {
			r.With(h.Access(bypass(adminStaff))).Get("/", h.GetTenant)
			r.With(h.Access(bypass(adminOnly)), h.Audited(audit.ActionUpdate, audit.ResourceTenant)).Put("/", h.UpdateTenant)
			r.With(h.Access(bypass(adminOnly)), h.Audited(audit.ActionDelete, audit.ResourceTenant)).Delete("/", h.DeleteTenant)
			r.With(h.Access(access.Policy{
				Requirement: authz.Requirement{Roles: adminOnly},
				Feature:     billing.FeatureCustomBranding,
			}), h.Audited(audit.ActionUpdate, audit.ResourceTenant)).Put("/branding", h.UpdateBranding)
			r.With(h.Access(policy(adminStaff))).Get("/stats", h.TenantStats)

			r.Route("/members", func(r chi.Router) {
				r.With(h.Access(policy(adminOnly))).Get("/", h.ListMembers)
				r.With(h.Access(access.Policy{
					Requirement: authz.Requirement{Roles: adminOnly},
					Quota:       billing.ResourceMembers,
				}), h.Audited(audit.ActionCreate, audit.ResourceMembership)).Post("/", h.AddMember)
				r.With(h.Access(policy(adminOnly)), h.Audited(audit.ActionDelete, audit.ResourceMembership)).Delete("/{userID}", h.RemoveMember)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.With(h.Access(policy(adminOnly))).Get("/", h.ListAPIKeys)
				r.With(h.Access(access.Policy{
					Requirement: authz.Requirement{Roles: adminOnly},
					Feature:     billing.FeatureAPIAccess,
					Quota:       billing.ResourceAPIKeys,
				}), h.Audited(audit.ActionCreate, audit.ResourceAPIKey)).Post("/", h.CreateAPIKey)
				r.With(h.Access(policy(adminOnly))).Get("/{keyID}", h.GetAPIKey)
				r.With(h.Access(policy(adminOnly))).Get("/{keyID}/stats", h.APIKeyStats)
				r.With(h.Access(policy(adminOnly)), h.Audited(audit.ActionUpdate, audit.ResourceAPIKey)).Put("/{keyID}", h.UpdateAPIKey)
				r.With(h.Access(policy(adminOnly)), h.Audited(audit.ActionUpdate, audit.ResourceAPIKey)).Delete("/{keyID}", h.RevokeAPIKey)
				r.With(h.Access(policy(adminOnly)), h.Audited(audit.ActionDelete, audit.ResourceAPIKey)).Delete("/{keyID}/permanent", h.DeleteAPIKey)
				// reactivation brings a key back into the active count
				r.With(h.Access(access.Policy{
					Requirement: authz.Requirement{Roles: adminOnly},
					Feature:     billing.FeatureAPIAccess,
					Quota:       billing.ResourceAPIKeys,
				}), h.Audited(audit.ActionUpdate, audit.ResourceAPIKey)).Post("/{keyID}/activate", h.ActivateAPIKey)
			})

			r.Route("/billing", func(r chi.Router) {
				r.With(h.Access(policy(adminStaff))).Get("/subscription", h.GetSubscription)
				r.With(h.Access(policy(adminStaff))).Get("/usage", h.GetUsage)
				r.With(h.Access(bypass(adminOnly)), h.Audited(audit.ActionUpdate, audit.ResourceSubscription)).Post("/upgrade", h.UpgradePlan)
				r.With(h.Access(bypass(adminOnly)), h.Audited(audit.ActionUpdate, audit.ResourceSubscription)).Post("/cancel", h.CancelSubscription)
			})

			r.Route("/claims", func(r chi.Router) {
				read := access.Policy{Requirement: authz.Requirement{Roles: adminStaff, Scope: authz.ScopeClaimsRead}}
				write := access.Policy{Requirement: authz.Requirement{Roles: adminStaff, Scope: authz.ScopeClaimsWrite}}
				remove := access.Policy{Requirement: authz.Requirement{Roles: adminOnly, Scope: authz.ScopeClaimsWrite}}
				create := write
				create.Quota = billing.ResourceClaims

				r.With(h.Access(create), h.Audited(audit.ActionCreate, audit.ResourceClaim)).Post("/", h.CreateClaim)
				r.With(h.Access(read)).Get("/", h.ListClaims)
				r.With(h.Access(read)).Get("/{claimID}", h.GetClaim)
				r.With(h.Access(write), h.Audited(audit.ActionUpdate, audit.ResourceClaim)).Put("/{claimID}", h.UpdateClaim)
				r.With(h.Access(remove), h.Audited(audit.ActionDelete, audit.ResourceClaim)).Delete("/{claimID}", h.DeleteClaim)
				r.With(h.Access(write), h.Audited(audit.ActionUpdate, audit.ResourceClaim)).Patch("/{claimID}/assign", h.AssignClaim)
				r.With(h.Access(write), h.Audited(audit.ActionUpdate, audit.ResourceClaim)).Patch("/{claimID}/resolve", h.ResolveClaim)
			})

			r.With(h.Access(policy(adminOnly))).Get("/audit-logs", h.ListAuditLogs)
		})
	})

	return r
}

// HealthCheck pings every backing service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, ping := range h.health {
		if err := ping(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", logger.Component(name), logger.Error(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]any{
		"status":  state,
		"service": "claimdesk",
		"checks":  checks,
	})
}

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", logger.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"message": message,
	})
}

// clientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
