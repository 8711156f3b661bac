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

package claim

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/id"
)

// QuotaSource supplies the claim allowance of a tenant
type QuotaSource interface {
	ClaimLimit(ctx context.Context, tenantID string) (billing.ClaimQuota, error)
}

// MemberLookup checks tenant membership of an assignee
type MemberLookup interface {
	RoleFor(ctx context.Context, tenantID, userID string) (authz.Role, error)
}

// Service provides claim business logic
type Service struct {
	repo     Repository
	quotas   QuotaSource
	members  MemberLookup
	notifier Notifier
	now      func() time.Time
}

// NewService creates a claim service. A nil notifier logs notifications.
func NewService(repo Repository, quotas QuotaSource, members MemberLookup, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NewLogNotifier(nil)
	}
	return &Service{
		repo:     repo,
		quotas:   quotas,
		members:  members,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is a new claim
type CreateInput struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Subject       string `json:"subject"`
	Description   string `json:"description"`
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.CustomerName) == "" || strings.TrimSpace(in.Subject) == "" {
		return fmt.Errorf("%w: customer_name and subject are required", ErrInvalidClaim)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.CustomerEmail)); err != nil {
		return fmt.Errorf("%w: customer_email is invalid", ErrInvalidClaim)
	}
	return nil
}

// Create registers a claim. The quota check and insert are atomic, so
// concurrent creates cannot overshoot the plan limit.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (*Claim, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	q, err := s.quotas.ClaimLimit(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve claim quota: %w", err)
	}

	now := s.now()
	c := &Claim{
		ID:            id.NewUUIDv7(),
		TenantID:      tenantID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerEmail: strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		Subject:       strings.TrimSpace(in.Subject),
		Description:   strings.TrimSpace(in.Description),
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.CreateWithinQuota(ctx, c, Quota{Limit: q.Limit, Since: q.PeriodStart}); err != nil {
		var exceeded *QuotaExceeded
		if errors.As(err, &exceeded) {
			return nil, &billing.QuotaError{
				Plan:     q.Plan,
				Resource: billing.ResourceClaims,
				Usage:    exceeded.Usage,
				Limit:    exceeded.Limit,
			}
		}
		return nil, err
	}

	s.notifier.ClaimCreated(ctx, c)
	return c, nil
}

// List returns the tenant's claims
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) ([]*Claim, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, tenantID, f)
}

// Get returns one claim
func (s *Service) Get(ctx context.Context, tenantID, claimID string) (*Claim, error) {
	return s.repo.GetByID(ctx, tenantID, claimID)
}

// UpdateInput carries optional edits. Nil fields are left alone.
type UpdateInput struct {
	CustomerName  *string `json:"customer_name,omitempty"`
	CustomerEmail *string `json:"customer_email,omitempty"`
	Subject       *string `json:"subject,omitempty"`
	Description   *string `json:"description,omitempty"`
}

// Update edits an unresolved claim
func (s *Service) Update(ctx context.Context, tenantID, claimID string, in UpdateInput) (before, after *Claim, err error) {
	return s.mutate(ctx, tenantID, claimID, func(c *Claim) error {
		if c.Status == StatusResolved {
			return ErrClaimAlreadyResolved
		}
		if in.CustomerName != nil {
			c.CustomerName = strings.TrimSpace(*in.CustomerName)
		}
		if in.CustomerEmail != nil {
			c.CustomerEmail = strings.ToLower(strings.TrimSpace(*in.CustomerEmail))
		}
		if in.Subject != nil {
			c.Subject = strings.TrimSpace(*in.Subject)
		}
		if in.Description != nil {
			c.Description = strings.TrimSpace(*in.Description)
		}
		return CreateInput{CustomerName: c.CustomerName, CustomerEmail: c.CustomerEmail, Subject: c.Subject}.validate()
	})
}

// Assign hands the claim to a tenant member
func (s *Service) Assign(ctx context.Context, tenantID, claimID, assigneeID string) (before, after *Claim, err error) {
	if _, err := s.members.RoleFor(ctx, tenantID, assigneeID); err != nil {
		if errors.Is(err, authz.ErrNotMember) {
			return nil, nil, ErrAssigneeNotMember
		}
		return nil, nil, err
	}

	before, after, err = s.mutate(ctx, tenantID, claimID, func(c *Claim) error {
		if c.Status == StatusResolved {
			return ErrInvalidTransition
		}
		now := s.now()
		c.AssigneeID = &assigneeID
		c.AssignedAt = &now
		c.Status = StatusAssigned
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.notifier.ClaimAssigned(ctx, after)
	return before, after, nil
}

// Resolve closes the claim with a resolution text
func (s *Service) Resolve(ctx context.Context, tenantID, claimID, resolution string) (before, after *Claim, err error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, nil, ErrResolutionRequired
	}

	before, after, err = s.mutate(ctx, tenantID, claimID, func(c *Claim) error {
		if c.Status == StatusResolved {
			return ErrInvalidTransition
		}
		now := s.now()
		c.Resolution = resolution
		c.ResolvedAt = &now
		c.Status = StatusResolved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.notifier.ClaimResolved(ctx, after)
	return before, after, nil
}

// Delete removes a claim
func (s *Service) Delete(ctx context.Context, tenantID, claimID string) (*Claim, error) {
	c, err := s.repo.GetByID(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, tenantID, claimID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) mutate(ctx context.Context, tenantID, claimID string, apply func(*Claim) error) (before, after *Claim, err error) {
	before, err = s.repo.GetByID(ctx, tenantID, claimID)
	if err != nil {
		return nil, nil, err
	}
	cp := *before
	after = &cp
	if err := apply(after); err != nil {
		return nil, nil, err
	}
	after.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, after); err != nil {
		return nil, nil, fmt.Errorf("failed to update claim: %w", err)
	}
	return before, after, nil
}
