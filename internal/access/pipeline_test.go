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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/claimdesk/claimdesk/internal/authn"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
	"github.com/claimdesk/claimdesk/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	creds    *spyCredentials
	tenants  *spyTenants
	authz    *spyAuthorizer
	limiter  *spyLimiter
	gate     *spyGate
	usage    *usage
	pipeline *Pipeline
}

type harnessOpts struct {
	max       int64
	counter   ratelimit.Counter
	planAware bool
}

func newHarness(opts harnessOpts) *harness {
	if opts.max == 0 {
		opts.max = 100
	}
	if opts.counter == nil {
		opts.counter = ratelimit.NewMemoryCounter()
	}

	h := &harness{
		creds: &spyCredentials{ids: map[string]authz.Identity{
			"tok-admin":     authz.SessionIdentity{UserID: "u-admin", GlobalRole: authz.GlobalRoleUser},
			"tok-staff":     authz.SessionIdentity{UserID: "u-staff", GlobalRole: authz.GlobalRoleUser},
			"tok-root":      authz.SessionIdentity{UserID: "u-root", GlobalRole: authz.GlobalRoleSuperadmin},
			"cdk_acme_read": authz.APIKeyIdentity{KeyID: "k-1", TenantID: "t-acme", Scopes: []string{authz.ScopeClaimsRead}},
		}},
		tenants: &spyTenants{tenants: map[string]*tenant.Tenant{
			"acme": {ID: "t-acme", Slug: "acme", Locale: "es"},
			"beta": {ID: "t-beta", Slug: "beta", Locale: "en"},
		}},
		usage: &usage{},
	}
	h.authz = &spyAuthorizer{inner: authz.NewAuthorizer(roles{
		"t-acme/u-admin": authz.RoleAdmin,
		"t-acme/u-staff": authz.RoleStaff,
		"t-beta/u-admin": authz.RoleAdmin,
	})}
	h.limiter = &spyLimiter{inner: ratelimit.NewLimiter(opts.counter, time.Minute, opts.max, nil)}
	h.gate = &spyGate{inner: billing.NewGate(plans{"t-beta": billing.PlanFree}, h.usage)}
	h.pipeline = NewPipeline(Deps{
		Credentials: h.creds,
		Tenants:     h.tenants,
		Authorizer:  h.authz,
		Limiter:     h.limiter,
		Gate:        h.gate,
	}, Config{DefaultLocale: "es", UpgradeURL: "/api/billing/upgrade", PlanAware: opts.planAware})
	return h
}

func bearer(tok, slug string) Request {
	return Request{Credentials: authn.Credentials{Bearer: tok}, Slug: slug, ClientIP: "10.0.0.1", Header: http.Header{}}
}

var (
	adminOnly   = Policy{Requirement: authz.Requirement{Roles: []authz.Role{authz.RoleAdmin}}}
	anyMember   = Policy{Requirement: authz.Requirement{Roles: []authz.Role{authz.RoleAdmin, authz.RoleStaff}}}
	createClaim = Policy{
		Requirement: authz.Requirement{Roles: []authz.Role{authz.RoleAdmin, authz.RoleStaff}, Scope: authz.ScopeClaimsWrite},
		Quota:       billing.ResourceClaims,
	}
	readClaims = Policy{Requirement: authz.Requirement{Roles: []authz.Role{authz.RoleAdmin, authz.RoleStaff}, Scope: authz.ScopeClaimsRead}}
)

func rejection(t *testing.T, err error) *Rejection {
	t.Helper()
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	return rej
}

// TestPurpose: Validates that a request without credentials stops at the first stage.
// Scope: Unit Test
// Security: Authentication precedes every tenant lookup
// Expected: 401 Unauthenticated; tenant, membership, limiter and gate stages never run.
// Test Case ID: ACC-01
func TestPipeline_NoCredential(t *testing.T) {
	h := newHarness(harnessOpts{})

	d, err := h.pipeline.Evaluate(context.Background(), bearer("", "acme"), adminOnly)
	rej := rejection(t, err)

	assert.Equal(t, KindUnauthenticated, rej.Kind)
	assert.Equal(t, http.StatusUnauthorized, rej.Status)
	assert.Equal(t, "Autenticación requerida", rej.Body()["message"])
	assert.Equal(t, StateRejected, d.State)
	assert.Equal(t, 1, h.creds.calls)
	assert.Zero(t, h.tenants.calls)
	assert.Zero(t, h.authz.calls)
	assert.Zero(t, h.limiter.calls)
	assert.Zero(t, h.gate.calls)
}

// TestPurpose: Validates that an API key cannot be pointed at another tenant.
// Scope: Unit Test
// Security: Tenant isolation for machine credentials
// Expected: 403 TenantMismatch without a slug lookup and without reaching authorization.
// Test Case ID: ACC-02
func TestPipeline_APIKeyTenantMismatch(t *testing.T) {
	h := newHarness(harnessOpts{})
	req := Request{Credentials: authn.Credentials{APIKey: "cdk_acme_read"}, Slug: "beta", ClientIP: "10.0.0.1"}

	_, err := h.pipeline.Evaluate(context.Background(), req, readClaims)
	rej := rejection(t, err)

	assert.Equal(t, KindTenantMismatch, rej.Kind)
	assert.Equal(t, http.StatusForbidden, rej.Status)
	assert.Zero(t, h.tenants.lookups)
	assert.Zero(t, h.authz.calls)
	assert.Zero(t, h.limiter.calls)

	// the bound tenant is used when the slug matches
	req.Slug = "acme"
	d, err := h.pipeline.Evaluate(context.Background(), req, readClaims)
	require.NoError(t, err)
	assert.Equal(t, "t-acme", d.TenantID())
}

// TestPurpose: Validates role enforcement on admin-only routes.
// Scope: Unit Test
// Security: Privilege escalation (CWE-269)
// Expected: Staff is rejected with 403 and the required roles; non-members get 403; later stages never run.
// Test Case ID: ACC-03
func TestPipeline_RoleEnforcement(t *testing.T) {
	h := newHarness(harnessOpts{})
	ctx := context.Background()

	_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), adminOnly)
	rej := rejection(t, err)
	assert.Equal(t, KindForbidden, rej.Kind)
	assert.Equal(t, []authz.Role{authz.RoleAdmin}, rej.Body()["required_roles"])
	assert.Zero(t, h.limiter.calls)
	assert.Zero(t, h.gate.calls)

	_, err = h.pipeline.Evaluate(ctx, bearer("tok-staff", "beta"), anyMember)
	assert.Equal(t, KindForbidden, rejection(t, err).Kind)

	_, err = h.pipeline.Evaluate(ctx, bearer("tok-staff", "nope"), anyMember)
	assert.Equal(t, KindNotFound, rejection(t, err).Kind)

	d, err := h.pipeline.Evaluate(ctx, bearer("tok-admin", "acme"), adminOnly)
	require.NoError(t, err)
	assert.Equal(t, StateQuotaChecked, d.State)
	assert.Equal(t, authz.RoleAdmin, d.Grant.Role)

	// a key without a matching scope is closed out of session-only routes
	_, err = h.pipeline.Evaluate(ctx, Request{Credentials: authn.Credentials{APIKey: "cdk_acme_read"}}, adminOnly)
	rej = rejection(t, err)
	assert.Equal(t, KindForbidden, rej.Kind)

	_, err = h.pipeline.Evaluate(ctx, Request{Credentials: authn.Credentials{APIKey: "cdk_acme_read"}}, createClaim)
	rej = rejection(t, err)
	assert.Equal(t, authz.ScopeClaimsWrite, rej.Body()["required_scope"])
}

// TestPurpose: Validates the claim quota on the free plan.
// Scope: Unit Test
// Security: Plan enforcement
// Expected: With N-1 claims the create passes; at N it is rejected with usage and limit, consistently.
// Test Case ID: ACC-04
func TestPipeline_Quota(t *testing.T) {
	h := newHarness(harnessOpts{})
	ctx := context.Background()

	h.usage.claims = 99
	_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), createClaim)
	require.NoError(t, err)

	h.usage.claims = 100
	for i := 0; i < 3; i++ {
		_, err = h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), createClaim)
		rej := rejection(t, err)
		assert.Equal(t, KindForbidden, rej.Kind)
		body := rej.Body()
		assert.Equal(t, int64(100), body["usage"])
		assert.Equal(t, int64(100), body["limit"])
		assert.Equal(t, billing.ResourceClaims, body["resource"])
		assert.Equal(t, "/api/billing/upgrade", body["upgrade_url"])
	}

	// reads are never quota gated
	_, err = h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), readClaims)
	assert.NoError(t, err)
}

// TestPurpose: Validates feature gating and message localisation.
// Scope: Unit Test
// Expected: A free tenant cannot use custom branding; the message follows the tenant locale.
// Test Case ID: ACC-05
func TestPipeline_Feature(t *testing.T) {
	h := newHarness(harnessOpts{})
	var logs bytes.Buffer
	h.pipeline.deps.Security = logger.NewSecurityLogger(slog.New(slog.NewJSONHandler(&logs, nil)))
	pol := Policy{Requirement: authz.Requirement{Roles: []authz.Role{authz.RoleAdmin}}, Feature: billing.FeatureCustomBranding}

	_, err := h.pipeline.Evaluate(context.Background(), bearer("tok-admin", "beta"), pol)
	rej := rejection(t, err)
	assert.Contains(t, logs.String(), `"plan":"free"`)
	assert.Equal(t, KindForbidden, rej.Kind)
	assert.Equal(t, "Feature custom_branding is not available on the free plan", rej.Message)
	assert.Equal(t, billing.FeatureCustomBranding, rej.Context["feature"])

	_, err = h.pipeline.Evaluate(context.Background(), bearer("tok-admin", "acme"), pol)
	assert.Equal(t, "La función custom_branding no está disponible en el plan free", rejection(t, err).Message)
}

// TestPurpose: Validates the fixed-window limit inside the pipeline.
// Scope: Unit Test
// Security: Abuse throttling
// Expected: Past the budget the request gets 429 with retry_after and the plan gate is skipped.
// Test Case ID: ACC-06
func TestPipeline_RateLimited(t *testing.T) {
	h := newHarness(harnessOpts{max: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), createClaim)
		require.NoError(t, err)
	}
	gateCalls := h.gate.calls

	d, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), createClaim)
	rej := rejection(t, err)
	assert.Equal(t, KindRateLimited, rej.Kind)
	assert.Equal(t, http.StatusTooManyRequests, rej.Status)
	assert.Positive(t, rej.Context["retry_after"])
	assert.False(t, d.RateLimit.Allowed)
	assert.True(t, d.RateLimited)
	assert.Equal(t, gateCalls, h.gate.calls)
	assert.Equal(t, "acme", h.limiter.slugs[0])
}

// TestPurpose: Validates the asymmetric failure policy of the pipeline.
// Scope: Unit Test
// Security: Availability versus plan enforcement
// Expected: A dead counter store lets requests through; a failing plan lookup rejects with 503.
// Test Case ID: ACC-07
func TestPipeline_FailurePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("limiter fails open", func(t *testing.T) {
		h := newHarness(harnessOpts{max: 1, counter: failingCounter{}})
		for i := 0; i < 5; i++ {
			d, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), createClaim)
			require.NoError(t, err)
			assert.True(t, d.RateLimit.Degraded)
		}
	})

	t.Run("gate fails closed", func(t *testing.T) {
		h := newHarness(harnessOpts{})
		h.usage.err = errors.New("pq: too many connections")
		_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), createClaim)
		rej := rejection(t, err)
		assert.Equal(t, KindInternal, rej.Kind)
		assert.Equal(t, http.StatusServiceUnavailable, rej.Status)
	})

	t.Run("tenant store fails closed", func(t *testing.T) {
		h := newHarness(harnessOpts{})
		h.tenants.err = errors.New("conn closed")
		_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), anyMember)
		assert.Equal(t, KindInternal, rejection(t, err).Kind)
		assert.Zero(t, h.authz.calls)
	})

	t.Run("credential store fails closed", func(t *testing.T) {
		h := newHarness(harnessOpts{})
		h.creds.err = errors.New("conn closed")
		_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", "acme"), anyMember)
		assert.Equal(t, KindInternal, rejection(t, err).Kind)
	})
}

// TestPurpose: Validates that the superadmin bypass applies only where a route opts in.
// Scope: Unit Test
// Security: Platform privilege is explicit, never implied
// Expected: Without AllowSuperadmin a non-member superadmin is rejected; with it the grant is admin.
// Test Case ID: ACC-08
func TestPipeline_SuperadminBypass(t *testing.T) {
	h := newHarness(harnessOpts{})
	ctx := context.Background()

	_, err := h.pipeline.Evaluate(ctx, bearer("tok-root", "acme"), adminOnly)
	assert.Equal(t, KindForbidden, rejection(t, err).Kind)

	bypass := adminOnly
	bypass.Requirement.AllowSuperadmin = true
	d, err := h.pipeline.Evaluate(ctx, bearer("tok-root", "acme"), bypass)
	require.NoError(t, err)
	assert.True(t, d.Grant.Superadmin)
	assert.Equal(t, authz.RoleAdmin, d.Grant.Role)
}

func TestPipeline_PlatformRoutes(t *testing.T) {
	h := newHarness(harnessOpts{})
	ctx := context.Background()
	listTenants := Policy{NoTenant: true, RequireSuperadmin: true}
	createTenant := Policy{NoTenant: true}

	_, err := h.pipeline.Evaluate(ctx, bearer("tok-staff", ""), listTenants)
	assert.Equal(t, KindForbidden, rejection(t, err).Kind)

	d, err := h.pipeline.Evaluate(ctx, bearer("tok-root", ""), listTenants)
	require.NoError(t, err)
	assert.Nil(t, d.Tenant)
	assert.Equal(t, ratelimit.PublicSlug, h.limiter.slugs[len(h.limiter.slugs)-1])

	_, err = h.pipeline.Evaluate(ctx, bearer("tok-staff", ""), createTenant)
	assert.NoError(t, err)

	_, err = h.pipeline.Evaluate(ctx, Request{Credentials: authn.Credentials{APIKey: "cdk_acme_read"}}, createTenant)
	assert.Equal(t, KindForbidden, rejection(t, err).Kind)
	assert.Zero(t, h.tenants.calls)
}

func TestPipeline_PlanAwareBudget(t *testing.T) {
	h := newHarness(harnessOpts{planAware: true})

	_, err := h.pipeline.Evaluate(context.Background(), bearer("tok-staff", "acme"), anyMember)
	require.NoError(t, err)
	// free plan: 30 per minute over a one minute window
	assert.Equal(t, []int64{30}, h.limiter.budgets)
}

func TestDecision_Advance(t *testing.T) {
	d := &Decision{State: StateQuotaChecked}
	d.Advance(StateAuthenticated)
	assert.Equal(t, StateQuotaChecked, d.State)
	d.Advance(StateHandled)
	d.Advance(StateAudited)
	assert.Equal(t, StateAudited, d.State)
	assert.True(t, d.State.Terminal())
	d.Advance(StateRejected)
	assert.Equal(t, StateAudited, d.State)
	assert.Equal(t, "audited", d.State.String())
	assert.Equal(t, "unknown", State(42).String())
}
