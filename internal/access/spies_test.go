package access

import (
	"context"
	"errors"
	"time"

	"github.com/claimdesk/claimdesk/internal/authn"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

type spyCredentials struct {
	calls int
	ids   map[string]authz.Identity
	err   error
}

func (s *spyCredentials) Resolve(_ context.Context, c authn.Credentials) (authz.Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if id, ok := s.ids[c.APIKey]; ok && c.APIKey != "" {
		return id, nil
	}
	if id, ok := s.ids[c.Bearer]; ok && c.Bearer != "" {
		return id, nil
	}
	return nil, authn.ErrUnauthenticated
}

type spyTenants struct {
	calls   int
	lookups int
	tenants map[string]*tenant.Tenant
	err     error
}

func (s *spyTenants) Resolve(_ context.Context, id authz.Identity, slug string) (*tenant.Tenant, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if key, ok := id.(authz.APIKeyIdentity); ok {
		for _, t := range s.tenants {
			if t.ID == key.TenantID {
				if slug != "" && slug != t.Slug {
					return nil, tenant.ErrTenantMismatch
				}
				return t, nil
			}
		}
		return nil, tenant.ErrTenantNotFound
	}
	s.lookups++
	t, ok := s.tenants[slug]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

type spyAuthorizer struct {
	calls int
	inner *authz.Authorizer
}

func (s *spyAuthorizer) Authorize(ctx context.Context, id authz.Identity, tenantID string, req authz.Requirement) (authz.Grant, error) {
	s.calls++
	return s.inner.Authorize(ctx, id, tenantID, req)
}

type roles map[string]authz.Role

func (r roles) RoleFor(_ context.Context, tenantID, userID string) (authz.Role, error) {
	if role, ok := r[tenantID+"/"+userID]; ok {
		return role, nil
	}
	return "", authz.ErrNotMember
}

type spyLimiter struct {
	calls   int
	budgets []int64
	slugs   []string
	inner   *ratelimit.Limiter
}

func (s *spyLimiter) Allow(ctx context.Context, slug, ip string, budget int64) ratelimit.Decision {
	s.calls++
	s.budgets = append(s.budgets, budget)
	s.slugs = append(s.slugs, slug)
	return s.inner.Allow(ctx, slug, ip, budget)
}

func (s *spyLimiter) PerWindow(perMinute int64) int64 {
	return s.inner.PerWindow(perMinute)
}

type spyGate struct {
	calls int
	inner *billing.Gate
	err   error
}

func (s *spyGate) CheckFeature(ctx context.Context, tenantID string, f billing.Feature) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return s.inner.CheckFeature(ctx, tenantID, f)
}

func (s *spyGate) CheckQuota(ctx context.Context, tenantID string, r billing.Resource) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return s.inner.CheckQuota(ctx, tenantID, r)
}

func (s *spyGate) RateLimitPerMinute(ctx context.Context, tenantID string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.inner.RateLimitPerMinute(ctx, tenantID)
}

// plans maps tenant IDs to plan names; anything else is free
type plans map[string]billing.PlanName

func (p plans) EffectivePlan(_ context.Context, tenantID string) (billing.Plan, *billing.Subscription, error) {
	cat := billing.DefaultCatalog()
	name, ok := p[tenantID]
	if !ok {
		name = billing.PlanFree
	}
	return cat.Lookup(name), &billing.Subscription{
		TenantID:          tenantID,
		Plan:              name,
		Status:            billing.StatusActive,
		BillingCycleStart: time.Now().UTC().Add(-time.Hour),
	}, nil
}

type usage struct {
	members, claims, keys int64
	err                   error
}

func (u *usage) CountMembers(context.Context, string) (int64, error)    { return u.members, u.err }
func (u *usage) CountActiveAPIKeys(context.Context, string) (int64, error) { return u.keys, u.err }
func (u *usage) CountClaimsSince(context.Context, string, time.Time) (int64, error) {
	return u.claims, u.err
}

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis: connection refused")
}
