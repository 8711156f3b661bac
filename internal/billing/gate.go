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

package billing

import (
	"context"
	"fmt"
	"time"
)

// FeatureError reports a feature the tenant's plan does not include
type FeatureError struct {
	Plan    PlanName
	Feature Feature
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %q is not available on the %s plan", e.Feature, e.Plan)
}

// QuotaError reports an exhausted plan quota
type QuotaError struct {
	Plan     PlanName
	Resource Resource
	Usage    int64
	Limit    int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota reached on the %s plan (%d/%d)", e.Resource, e.Plan, e.Usage, e.Limit)
}

// PlanSource resolves the plan governing a tenant
type PlanSource interface {
	EffectivePlan(ctx context.Context, tenantID string) (Plan, *Subscription, error)
}

// Gate answers feature and quota questions for the access pipeline. Every
// lookup error is returned; callers must treat it as a denial.
type Gate struct {
	plans PlanSource
	usage UsageCounter
	now   func() time.Time
}

// NewGate creates a new plan gate
func NewGate(plans PlanSource, usage UsageCounter) *Gate {
	return &Gate{
		plans: plans,
		usage: usage,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CheckFeature returns a *FeatureError when f is not enabled for the tenant.
func (g *Gate) CheckFeature(ctx context.Context, tenantID string, f Feature) error {
	plan, _, err := g.plans.EffectivePlan(ctx, tenantID)
	if err != nil {
		return err
	}
	if !plan.Enabled(f) {
		return &FeatureError{Plan: plan.Name, Feature: f}
	}
	return nil
}

// CheckQuota returns a *QuotaError when creating one more r would exceed the
// tenant's limit.
func (g *Gate) CheckQuota(ctx context.Context, tenantID string, r Resource) error {
	plan, sub, err := g.plans.EffectivePlan(ctx, tenantID)
	if err != nil {
		return err
	}
	ceiling := plan.Limits.For(r)
	if ceiling == nil {
		return nil
	}

	used, err := g.Count(ctx, tenantID, r, sub)
	if err != nil {
		return err
	}
	if used >= *ceiling {
		return &QuotaError{Plan: plan.Name, Resource: r, Usage: used, Limit: *ceiling}
	}
	return nil
}

// Count returns current usage of r.
func (g *Gate) Count(ctx context.Context, tenantID string, r Resource, sub *Subscription) (int64, error) {
	var (
		n   int64
		err error
	)
	switch r {
	case ResourceMembers:
		n, err = g.usage.CountMembers(ctx, tenantID)
	case ResourceAPIKeys:
		n, err = g.usage.CountActiveAPIKeys(ctx, tenantID)
	case ResourceClaims:
		n, err = g.usage.CountClaimsSince(ctx, tenantID, UsagePeriodStart(sub, g.now()))
	default:
		return 0, fmt.Errorf("unknown resource %q", r)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r, err)
	}
	return n, nil
}

// RateLimitPerMinute returns the request budget of the tenant's plan.
func (g *Gate) RateLimitPerMinute(ctx context.Context, tenantID string) (int64, error) {
	plan, _, err := g.plans.EffectivePlan(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return plan.Limits.RateLimitPerMinute, nil
}

// ClaimQuota is the claim allowance for the current usage period
type ClaimQuota struct {
	Plan        PlanName
	Limit       Limit
	PeriodStart time.Time
}

// ClaimLimit returns the claim quota and period start for an atomic insert.
func (g *Gate) ClaimLimit(ctx context.Context, tenantID string) (ClaimQuota, error) {
	plan, sub, err := g.plans.EffectivePlan(ctx, tenantID)
	if err != nil {
		return ClaimQuota{}, err
	}
	return ClaimQuota{
		Plan:        plan.Name,
		Limit:       plan.Limits.MaxClaimsPerMonth,
		PeriodStart: UsagePeriodStart(sub, g.now()),
	}, nil
}
