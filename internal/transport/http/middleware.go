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
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/claimdesk/claimdesk/internal/access"
	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
)

// LoggingMiddleware logs HTTP requests and feeds the Prometheus request metrics
func (h *Handler) LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				elapsed := time.Since(start)

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				h.httpMetrics.Observe(r.Method, route, status, elapsed)

				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.ClientIP(clientIP(r)),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(status),
					logger.Duration(elapsed.Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Access runs the access pipeline for pol. On success the decision is
// stored in the request context; on rejection the localized body is written
// and the handler never runs.
func (h *Handler) Access(pol access.Policy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := access.Request{
				Credentials: credentialsFrom(r),
				Slug:        chi.URLParam(r, "slug"),
				ClientIP:    clientIP(r),
				Header:      r.Header,
				Host:        r.Host,
			}

			d, err := h.pipeline.Evaluate(r.Context(), req, pol)
			if d != nil && d.RateLimited {
				d.RateLimit.WriteHeaders(w.Header())
			}
			if err != nil {
				var rej *access.Rejection
				if !errors.As(err, &rej) {
					slog.ErrorContext(r.Context(), "access pipeline failed", logger.Error(err))
					respondError(w, http.StatusServiceUnavailable, "service unavailable")
					return
				}
				if rej.Kind == access.KindRateLimited {
					h.httpMetrics.RateLimited(ratelimit.TenantSlug(d.TenantSlug(), r.Header, r.Host))
				}
				respondJSON(w, rej.Status, rej.Body())
				return
			}

			next.ServeHTTP(w, r.WithContext(withDecision(r.Context(), d)))
			d.Advance(access.StateHandled)
		})
	}
}

// PublicRateLimit applies the fixed-window limiter to unauthenticated routes.
func (h *Handler) PublicRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := ratelimit.TenantSlug("", r.Header, r.Host)
		dec := h.limiter.Allow(r.Context(), slug, clientIP(r), 0)
		dec.WriteHeaders(w.Header())
		if !dec.Allowed {
			h.httpMetrics.RateLimited(slug)
			respondJSON(w, http.StatusTooManyRequests, map[string]any{
				"message":     "too many requests",
				"retry_after": dec.RetryAfterSeconds(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Audited writes one audit entry per request once the handler returns.
// Handlers describe the touched resource with audit.Track; a status of 400
// or above is recorded as a failure with the response message as reason.
// A panicking handler is recorded as a 500 failure before the panic is
// passed on to the recoverer.
func (h *Handler) Audited(action audit.Action, resource string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := audit.WithScope(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			body := &bodyPrefix{max: maxAuditBody}
			ww.Tee(body)

			defer func() {
				rec := recover()
				status := ww.Status()
				if rec != nil {
					status = http.StatusInternalServerError
				} else if status == 0 {
					status = http.StatusOK
				}
				h.recordAudit(ctx, r, scope, action, resource, status, body.buf)
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

func (h *Handler) recordAudit(ctx context.Context, r *http.Request, scope *audit.Scope, action audit.Action, resource string, status int, body []byte) {
	e := &audit.Entry{
		Action:       action,
		ResourceType: resource,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
		Status:       audit.StatusSuccess,
	}
	d := DecisionFrom(ctx)
	if d != nil {
		d.Advance(access.StateHandled)
		e.TenantID = d.TenantID()
		if d.Identity != nil {
			e.UserID = authz.UserID(d.Identity)
			e.APIKeyID = authz.APIKeyID(d.Identity)
		}
	}
	if status >= http.StatusBadRequest {
		e.Status = audit.StatusFailure
		e.Reason = failureReason(status, body)
	}
	scope.Apply(ctx, e)
	// tenant creation runs before any tenant is bound
	if e.TenantID == "" && resource == audit.ResourceTenant {
		e.TenantID = e.ResourceID
	}

	if err := h.recorder.Record(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to record audit entry",
			logger.Component("audit"), logger.Error(err))
		return
	}
	if d != nil {
		d.Advance(access.StateAudited)
	}
}

const maxAuditBody = 4 << 10

// bodyPrefix keeps the first max bytes written through it.
type bodyPrefix struct {
	buf []byte
	max int
}

func (b *bodyPrefix) Write(p []byte) (int, error) {
	if room := b.max - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

// failureReason returns the message of an error body, falling back to the
// status text when the body has none.
func failureReason(status int, body []byte) string {
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}
	return http.StatusText(status)
}
