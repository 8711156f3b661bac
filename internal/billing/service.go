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
	"errors"
	"fmt"
	"time"
)

// Service manages subscriptions and reports plan usage
type Service struct {
	repo    Repository
	usage   UsageCounter
	catalog Catalog
	now     func() time.Time
}

// NewService creates a new billing service
func NewService(repo Repository, usage UsageCounter, catalog Catalog) *Service {
	return &Service{
		repo:    repo,
		usage:   usage,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Catalog returns the plan catalog
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// CreateFree starts a one-year free subscription for a new tenant.
func (s *Service) CreateFree(ctx context.Context, tenantID string) error {
	now := s.now()
	return s.repo.Create(ctx, &Subscription{
		TenantID:          tenantID,
		Plan:              PlanFree,
		Status:            StatusActive,
		BillingCycleStart: now,
		BillingCycleEnd:   now.AddDate(1, 0, 0),
		AutoRenew:         true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

// Get returns the tenant's subscription
func (s *Service) Get(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.repo.GetByTenant(ctx, tenantID)
}

// EffectivePlan returns the plan that currently governs the tenant. A missing,
// inactive or unknown subscription resolves to the free plan. Storage errors
// are returned so callers can fail closed.
func (s *Service) EffectivePlan(ctx context.Context, tenantID string) (Plan, *Subscription, error) {
	sub, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return s.catalog.Lookup(PlanFree), nil, nil
		}
		return Plan{}, nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if !sub.Active() {
		return s.catalog.Lookup(PlanFree), sub, nil
	}
	return s.catalog.Lookup(sub.Plan), sub, nil
}

// Upgrade moves the tenant to plan and starts a new monthly cycle.
func (s *Service) Upgrade(ctx context.Context, tenantID string, plan PlanName) (before, after *Subscription, err error) {
	if !s.catalog.Has(plan) {
		return nil, nil, ErrUnknownPlan
	}

	now := s.now()
	current, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if current == nil {
		next := &Subscription{
			TenantID:          tenantID,
			Plan:              plan,
			Status:            StatusActive,
			BillingCycleStart: now,
			BillingCycleEnd:   now.AddDate(0, 1, 0),
			AutoRenew:         true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.repo.Create(ctx, next); err != nil {
			return nil, nil, err
		}
		return nil, next, nil
	}

	if current.Plan == plan && current.Active() {
		return nil, nil, ErrSamePlan
	}

	prev := *current
	current.Plan = plan
	current.Status = StatusActive
	current.BillingCycleStart = now
	current.BillingCycleEnd = now.AddDate(0, 1, 0)
	current.AutoRenew = true
	current.CancelledAt = nil
	current.CancellationReason = ""
	current.UpdatedAt = now

	if err := s.repo.Update(ctx, current); err != nil {
		return nil, nil, err
	}
	return &prev, current, nil
}

// Cancel cancels the tenant's subscription. The plan stops applying at once;
// the tenant falls back to free limits.
func (s *Service) Cancel(ctx context.Context, tenantID, reason string) (before, after *Subscription, err error) {
	current, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if current.Status == StatusCancelled {
		return nil, nil, ErrAlreadyCancelled
	}

	now := s.now()
	prev := *current
	current.Status = StatusCancelled
	current.AutoRenew = false
	current.CancelledAt = &now
	current.CancellationReason = reason
	current.UpdatedAt = now

	if err := s.repo.Update(ctx, current); err != nil {
		return nil, nil, err
	}
	return &prev, current, nil
}

// CancelForTenant cancels as part of tenant deletion. A missing or already
// cancelled subscription is not an error.
func (s *Service) CancelForTenant(ctx context.Context, tenantID, reason string) error {
	_, _, err := s.Cancel(ctx, tenantID, reason)
	if err == nil || errors.Is(err, ErrSubscriptionNotFound) || errors.Is(err, ErrAlreadyCancelled) {
		return nil
	}
	return err
}

// ResourceUsage is the consumption of one resource against its limit
type ResourceUsage struct {
	Used  int64  `json:"used"`
	Limit *int64 `json:"limit"`
}

// UsageReport summarizes a tenant's consumption for the current period
type UsageReport struct {
	Plan        PlanName                   `json:"plan"`
	PeriodStart time.Time                  `json:"period_start"`
	Resources   map[Resource]ResourceUsage `json:"resources"`
}

// Usage reports current consumption against the effective plan.
func (s *Service) Usage(ctx context.Context, tenantID string) (*UsageReport, error) {
	plan, sub, err := s.EffectivePlan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	period := UsagePeriodStart(sub, s.now())

	members, err := s.usage.CountMembers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	claims, err := s.usage.CountClaimsSince(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to count claims: %w", err)
	}
	keys, err := s.usage.CountActiveAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count api keys: %w", err)
	}

	return &UsageReport{
		Plan:        plan.Name,
		PeriodStart: period,
		Resources: map[Resource]ResourceUsage{
			ResourceMembers: {Used: members, Limit: plan.Limits.MaxUsers},
			ResourceClaims:  {Used: claims, Limit: plan.Limits.MaxClaimsPerMonth},
			ResourceAPIKeys: {Used: keys, Limit: plan.Limits.MaxAPIKeys},
		},
	}, nil
}
