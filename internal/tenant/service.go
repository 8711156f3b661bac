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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/id"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
)

// Service provides tenant management business logic
type Service struct {
	repo          Repository
	members       MembershipRepository
	subscriptions Subscriptions
}

// NewService creates a new tenant service
func NewService(repo Repository, members MembershipRepository, subscriptions Subscriptions) *Service {
	return &Service{
		repo:          repo,
		members:       members,
		subscriptions: subscriptions,
	}
}

// CreateInput describes a new tenant
type CreateInput struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Locale   string   `json:"locale"`
	Branding Branding `json:"branding"`
	Contact  Contact  `json:"contact"`
}

// CreateTenant creates a tenant with a free subscription. When creatorID is
// set the creator becomes the tenant's first admin.
func (s *Service) CreateTenant(ctx context.Context, in CreateInput, creatorID string) (*Tenant, error) {
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrNameRequired
	}
	locale := in.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	now := time.Now().UTC()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Slug:      slug,
		Name:      strings.TrimSpace(in.Name),
		Locale:    locale,
		Branding:  in.Branding,
		Contact:   in.Contact,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if err := s.subscriptions.CreateFree(ctx, t.ID); err != nil {
		s.rollbackCreate(ctx, t)
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	if creatorID != "" {
		if err := s.AddMember(ctx, t.ID, creatorID, authz.RoleAdmin); err != nil {
			s.rollbackCreate(ctx, t)
			return nil, fmt.Errorf("failed to add tenant admin: %w", err)
		}
	}

	return t, nil
}

func (s *Service) rollbackCreate(ctx context.Context, t *Tenant) {
	if err := s.repo.Delete(ctx, t.ID); err != nil {
		slog.ErrorContext(ctx, "failed to roll back tenant creation",
			logger.TenantSlug(t.Slug), logger.Error(err))
	}
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	if id == "" {
		return nil, ErrTenantNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// GetBySlug retrieves a tenant by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if slug == "" {
		return nil, ErrTenantNotFound
	}
	return s.repo.GetBySlug(ctx, strings.ToLower(slug))
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// UpdateInput carries optional tenant changes. Nil fields are left alone.
type UpdateInput struct {
	Name    *string  `json:"name,omitempty"`
	Locale  *string  `json:"locale,omitempty"`
	Contact *Contact `json:"contact,omitempty"`
}

// UpdateTenant applies in and returns the tenant before and after.
func (s *Service) UpdateTenant(ctx context.Context, tenantID string, in UpdateInput) (before, after *Tenant, err error) {
	current, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	prev := *current

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, nil, ErrNameRequired
		}
		current.Name = name
	}
	if in.Locale != nil && *in.Locale != "" {
		current.Locale = *in.Locale
	}
	if in.Contact != nil {
		current.Contact = *in.Contact
	}
	current.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, current); err != nil {
		return nil, nil, err
	}
	return &prev, current, nil
}

// UpdateBranding replaces the tenant's branding.
func (s *Service) UpdateBranding(ctx context.Context, tenantID string, b Branding) (before, after *Tenant, err error) {
	current, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	prev := *current
	current.Branding = b
	current.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, nil, err
	}
	return &prev, current, nil
}

// DeleteTenant deletes a tenant and cancels its subscription. Unless force is
// set, a tenant with members other than the caller is refused.
func (s *Service) DeleteTenant(ctx context.Context, tenantID, callerID string, force bool) error {
	if !force {
		members, err := s.members.ListByTenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}
		for _, m := range members {
			if m.UserID != callerID {
				return ErrTenantHasMembers
			}
		}
	}

	if err := s.subscriptions.CancelForTenant(ctx, tenantID, "tenant deleted"); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return s.repo.Delete(ctx, tenantID)
}

// AddMember grants a user a role in a tenant
func (s *Service) AddMember(ctx context.Context, tenantID, userID string, role authz.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	return s.members.Add(ctx, &Membership{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
}

// RemoveMember removes a user from a tenant. The last admin cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, tenantID, userID string) (*Membership, error) {
	m, err := s.members.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role == authz.RoleAdmin {
		counts, err := s.members.CountByRole(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to count admins: %w", err)
		}
		if counts[string(authz.RoleAdmin)] <= 1 {
			return nil, ErrLastAdmin
		}
	}
	if err := s.members.Remove(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers lists a tenant's members
func (s *Service) ListMembers(ctx context.Context, tenantID string) ([]*Member, error) {
	return s.members.ListByTenant(ctx, tenantID)
}

// MembershipsFor lists the tenants a user belongs to
func (s *Service) MembershipsFor(ctx context.Context, userID string) ([]*UserTenant, error) {
	return s.members.ListByUser(ctx, userID)
}

// MemberCounts returns members per role.
func (s *Service) MemberCounts(ctx context.Context, tenantID string) (map[string]int64, error) {
	return s.members.CountByRole(ctx, tenantID)
}

// RoleFor implements authz.MembershipLookup.
func (s *Service) RoleFor(ctx context.Context, tenantID, userID string) (authz.Role, error) {
	m, err := s.members.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			return "", authz.ErrNotMember
		}
		return "", err
	}
	return m.Role, nil
}
