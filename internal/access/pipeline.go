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

package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/claimdesk/claimdesk/internal/authn"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/observability/metrics"
	"github.com/claimdesk/claimdesk/internal/observability/tracing"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// CredentialResolver turns request credentials into an identity
type CredentialResolver interface {
	Resolve(ctx context.Context, c authn.Credentials) (authz.Identity, error)
}

// TenantResolver binds the request to a tenant
type TenantResolver interface {
	Resolve(ctx context.Context, id authz.Identity, slug string) (*tenant.Tenant, error)
}

// Authorizer checks membership, role and scope
type Authorizer interface {
	Authorize(ctx context.Context, id authz.Identity, tenantID string, req authz.Requirement) (authz.Grant, error)
}

// RateLimiter counts requests per tenant and client
type RateLimiter interface {
	Allow(ctx context.Context, tenantSlug, ip string, budget int64) ratelimit.Decision
	PerWindow(perMinute int64) int64
}

// PlanGate enforces plan features and quotas
type PlanGate interface {
	CheckFeature(ctx context.Context, tenantID string, f billing.Feature) error
	CheckQuota(ctx context.Context, tenantID string, r billing.Resource) error
	RateLimitPerMinute(ctx context.Context, tenantID string) (int64, error)
}

// Policy is what a route requires of a request
type Policy struct {
	Requirement authz.Requirement
	// Feature, when set, must be enabled on the tenant's plan.
	Feature billing.Feature
	// Quota, when set, must have room for one more item.
	Quota billing.Resource
	// NoTenant marks platform routes that run without a tenant. They are
	// always closed to API keys.
	NoTenant bool
	// RequireSuperadmin restricts a NoTenant route to superadmins.
	RequireSuperadmin bool
}

// Request is the transport-independent view of an incoming request
type Request struct {
	Credentials authn.Credentials
	Slug        string
	ClientIP    string
	Header      http.Header
	Host        string
}

// Decision accumulates what the stages learned about a request
type Decision struct {
	State     State
	Identity  authz.Identity
	Tenant    *tenant.Tenant
	Grant     authz.Grant
	Locale    string
	RateLimit ratelimit.Decision
	// RateLimited is false when the limiter stage never ran.
	RateLimited bool
}

// Advance moves the decision forward. Transitions out of a terminal state
// or backwards are ignored.
func (d *Decision) Advance(s State) {
	if d.State.Terminal() || s <= d.State {
		return
	}
	d.State = s
}

// TenantID returns the resolved tenant's ID, or "".
func (d *Decision) TenantID() string {
	if d.Tenant == nil {
		return ""
	}
	return d.Tenant.ID
}

// TenantSlug returns the resolved tenant's slug, or "".
func (d *Decision) TenantSlug() string {
	if d.Tenant == nil {
		return ""
	}
	return d.Tenant.Slug
}

// Deps are the pipeline stages and their observers
type Deps struct {
	Credentials CredentialResolver
	Tenants     TenantResolver
	Authorizer  Authorizer
	Limiter     RateLimiter
	Gate        PlanGate
	Tracer      *tracing.Tracer
	Instruments *metrics.Instruments
	Security    *logger.SecurityLogger
}

// Config tunes pipeline behaviour
type Config struct {
	DefaultLocale string
	UpgradeURL    string
	// PlanAware scales the limiter budget by the plan's per-minute rate.
	PlanAware bool
}

// Pipeline evaluates requests against route policies
type Pipeline struct {
	deps Deps
	cfg  Config
}

// NewPipeline creates a pipeline
func NewPipeline(deps Deps, cfg Config) *Pipeline {
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	if deps.Security == nil {
		deps.Security = logger.NewSecurityLogger(nil)
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = tenant.DefaultLocale
	}
	return &Pipeline{deps: deps, cfg: cfg}
}

// DefaultLocale is the message locale used before a tenant is resolved
func (p *Pipeline) DefaultLocale() string {
	return p.cfg.DefaultLocale
}

// Evaluate runs the stages in order. On failure it returns the partial
// decision together with a *Rejection; no later stage has run.
func (p *Pipeline) Evaluate(ctx context.Context, req Request, pol Policy) (*Decision, error) {
	d := &Decision{State: StateReceived, Locale: p.cfg.DefaultLocale}

	if rej := p.authenticate(ctx, req, pol, d); rej != nil {
		return d, rej
	}
	if !pol.NoTenant {
		if rej := p.resolveTenant(ctx, req, d); rej != nil {
			return d, rej
		}
	}
	if rej := p.authorize(ctx, req, pol, d); rej != nil {
		return d, rej
	}
	if rej := p.rateLimit(ctx, req, d); rej != nil {
		return d, rej
	}
	if rej := p.checkPlan(ctx, req, pol, d); rej != nil {
		return d, rej
	}
	return d, nil
}

func (p *Pipeline) authenticate(ctx context.Context, req Request, pol Policy, d *Decision) *Rejection {
	sctx, span := p.deps.Tracer.StartStage(ctx, StageAuthenticate)
	id, err := p.deps.Credentials.Resolve(sctx, req.Credentials)
	tracing.EndStage(span, err)

	if err != nil {
		if errors.Is(err, authn.ErrUnauthenticated) {
			return p.reject(ctx, req, d, StageAuthenticate, KindUnauthenticated, msgUnauthenticated, nil, err)
		}
		return p.reject(ctx, req, d, StageAuthenticate, KindInternal, msgUnavailable, nil, err)
	}
	d.Identity = id
	d.Advance(StateAuthenticated)
	return nil
}

func (p *Pipeline) resolveTenant(ctx context.Context, req Request, d *Decision) *Rejection {
	sctx, span := p.deps.Tracer.StartStage(ctx, StageTenant, tracing.TenantSlug(req.Slug))
	t, err := p.deps.Tenants.Resolve(sctx, d.Identity, req.Slug)
	tracing.EndStage(span, err)

	switch {
	case err == nil:
	case errors.Is(err, tenant.ErrTenantMismatch):
		return p.reject(ctx, req, d, StageTenant, KindTenantMismatch, msgTenantMismatch, nil, err)
	case errors.Is(err, tenant.ErrTenantNotFound):
		return p.reject(ctx, req, d, StageTenant, KindNotFound, msgTenantNotFound, nil, err)
	default:
		return p.reject(ctx, req, d, StageTenant, KindInternal, msgUnavailable, nil, err)
	}

	d.Tenant = t
	if t.Locale != "" {
		d.Locale = t.Locale
	}
	d.Advance(StateTenantResolved)
	return nil
}

func (p *Pipeline) authorize(ctx context.Context, req Request, pol Policy, d *Decision) *Rejection {
	sctx, span := p.deps.Tracer.StartStage(ctx, StageAuthorize)
	grant, err := p.authorizeIdentity(sctx, pol, d)
	tracing.EndStage(span, err)

	switch {
	case err == nil:
	case errors.Is(err, errSessionRequired):
		return p.reject(ctx, req, d, StageAuthorize, KindForbidden, msgSessionRequired, nil, err)
	case errors.Is(err, errSuperadminRequired):
		return p.reject(ctx, req, d, StageAuthorize, KindForbidden, msgSuperadminRequired, nil, err)
	case errors.Is(err, authz.ErrNotMember):
		return p.reject(ctx, req, d, StageAuthorize, KindForbidden, msgNotMember, nil, err)
	case errors.Is(err, authz.ErrInsufficientRole):
		return p.reject(ctx, req, d, StageAuthorize, KindForbidden, msgInsufficientRole,
			map[string]any{"required_roles": pol.Requirement.Roles}, err)
	case errors.Is(err, authz.ErrInsufficientScope):
		return p.reject(ctx, req, d, StageAuthorize, KindForbidden, msgInsufficientScope,
			map[string]any{"required_scope": pol.Requirement.Scope}, err)
	case errors.Is(err, authz.ErrUnknownIdentity):
		return p.reject(ctx, req, d, StageAuthorize, KindUnauthenticated, msgUnauthenticated, nil, err)
	default:
		return p.reject(ctx, req, d, StageAuthorize, KindInternal, msgUnavailable, nil, err)
	}

	d.Grant = grant
	d.Advance(StateAuthorized)
	return nil
}

var (
	errSessionRequired    = errors.New("route requires a user session")
	errSuperadminRequired = errors.New("route requires superadmin")
)

func (p *Pipeline) authorizeIdentity(ctx context.Context, pol Policy, d *Decision) (authz.Grant, error) {
	if !pol.NoTenant {
		return p.deps.Authorizer.Authorize(ctx, d.Identity, d.Tenant.ID, pol.Requirement)
	}

	s, ok := d.Identity.(authz.SessionIdentity)
	if !ok {
		return authz.Grant{}, errSessionRequired
	}
	if pol.RequireSuperadmin && !s.IsSuperadmin() {
		return authz.Grant{}, errSuperadminRequired
	}
	return authz.Grant{Superadmin: s.IsSuperadmin()}, nil
}

func (p *Pipeline) rateLimit(ctx context.Context, req Request, d *Decision) *Rejection {
	sctx, span := p.deps.Tracer.StartStage(ctx, StageRateLimit)
	defer span.End()

	var budget int64
	if p.cfg.PlanAware && d.Tenant != nil {
		perMinute, err := p.deps.Gate.RateLimitPerMinute(sctx, d.Tenant.ID)
		if err != nil {
			slog.WarnContext(ctx, "plan lookup failed, using default rate limit",
				logger.TenantSlug(d.Tenant.Slug), logger.Error(err))
		} else {
			budget = p.deps.Limiter.PerWindow(perMinute)
		}
	}

	slug := ratelimit.TenantSlug(d.TenantSlug(), req.Header, req.Host)
	dec := p.deps.Limiter.Allow(sctx, slug, req.ClientIP, budget)
	d.RateLimit = dec
	d.RateLimited = true

	if !dec.Allowed {
		return p.reject(ctx, req, d, StageRateLimit, KindRateLimited, msgRateLimited,
			map[string]any{"retry_after": dec.RetryAfterSeconds()}, nil)
	}
	d.Advance(StateRateChecked)
	return nil
}

func (p *Pipeline) checkPlan(ctx context.Context, req Request, pol Policy, d *Decision) *Rejection {
	if d.Tenant == nil || (pol.Feature == "" && pol.Quota == "") {
		d.Advance(StateQuotaChecked)
		return nil
	}

	sctx, span := p.deps.Tracer.StartStage(ctx, StagePlan)
	var err error
	if pol.Feature != "" {
		err = p.deps.Gate.CheckFeature(sctx, d.Tenant.ID, pol.Feature)
	}
	if err == nil && pol.Quota != "" {
		err = p.deps.Gate.CheckQuota(sctx, d.Tenant.ID, pol.Quota)
	}
	tracing.EndStage(span, err)

	if err == nil {
		d.Advance(StateQuotaChecked)
		return nil
	}

	var (
		featureErr *billing.FeatureError
		quotaErr   *billing.QuotaError
	)
	switch {
	case errors.As(err, &featureErr):
		return p.reject(ctx, req, d, StagePlan, KindForbidden, msgFeatureUnavailable, map[string]any{
			"plan":        featureErr.Plan,
			"feature":     featureErr.Feature,
			"upgrade_url": p.cfg.UpgradeURL,
		}, err, featureErr.Feature, featureErr.Plan)
	case errors.As(err, &quotaErr):
		return p.reject(ctx, req, d, StagePlan, KindForbidden, msgQuotaExceeded, map[string]any{
			"plan":        quotaErr.Plan,
			"resource":    quotaErr.Resource,
			"usage":       quotaErr.Usage,
			"limit":       quotaErr.Limit,
			"upgrade_url": p.cfg.UpgradeURL,
		}, err, quotaErr.Resource, quotaErr.Plan)
	default:
		return p.reject(ctx, req, d, StagePlan, KindInternal, msgUnavailable, nil, err)
	}
}

func (p *Pipeline) reject(ctx context.Context, req Request, d *Decision, stage string, kind Kind,
	key messageKey, details map[string]any, err error, args ...any) *Rejection {
	d.State = StateRejected
	rej := &Rejection{
		Kind:    kind,
		Status:  kind.Status(),
		Stage:   stage,
		Message: message(d.Locale, key, args...),
		Context: details,
		Err:     err,
	}

	p.deps.Instruments.Rejection(ctx, stage, string(kind))

	if kind == KindInternal {
		slog.ErrorContext(ctx, "access pipeline backend failure",
			logger.Stage(stage),
			logger.RejectionKind(string(kind)),
			logger.TenantSlug(req.Slug),
			logger.Error(err),
		)
		return rej
	}

	event := logger.SecurityEvent{
		TenantSlug: req.Slug,
		IPAddress:  req.ClientIP,
		Resource:   stage,
		Reason:     string(kind),
	}
	if plan, ok := details["plan"].(billing.PlanName); ok {
		event.Plan = string(plan)
	}
	if d.Identity != nil {
		event.UserID = authz.UserID(d.Identity)
		event.APIKeyID = authz.APIKeyID(d.Identity)
	}
	p.deps.Security.AccessDenied(ctx, event)
	return rej
}
