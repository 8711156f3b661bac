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

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// TenantProvisioner is the slice of the tenant service bootstrap needs
type TenantProvisioner interface {
	GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	CreateTenant(ctx context.Context, in tenant.CreateInput, creatorID string) (*tenant.Tenant, error)
}

// BootstrapOptions configures the initial seed
type BootstrapOptions struct {
	Enabled           bool
	SuperadminEmail   string
	SuperadminPass    string
	DefaultTenantSlug string
	DefaultTenantName string
	DefaultLocale     string
}

// BootstrapService seeds the platform superadmin and the default tenant
type BootstrapService struct {
	users   *Service
	tenants TenantProvisioner
	opts    BootstrapOptions
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(users *Service, tenants TenantProvisioner, opts BootstrapOptions) *BootstrapService {
	return &BootstrapService{users: users, tenants: tenants, opts: opts}
}

// Bootstrap is idempotent: an existing superadmin or default tenant is left
// as is, and an existing user with the seed email is promoted.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	if !s.opts.Enabled {
		return nil
	}

	user, created, err := s.users.FindOrCreate(ctx, NewUser{
		Email:      s.opts.SuperadminEmail,
		FullName:   "Superadmin",
		Password:   s.opts.SuperadminPass,
		GlobalRole: authz.GlobalRoleSuperadmin,
	})
	if err != nil {
		return fmt.Errorf("failed to seed superadmin: %w", err)
	}
	if !created && user.GlobalRole != authz.GlobalRoleSuperadmin {
		if err := s.users.PromoteSuperadmin(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to promote superadmin: %w", err)
		}
	}
	if created {
		slog.InfoContext(ctx, "superadmin created", logger.UserID(user.ID), logger.Email(user.Email))
	}

	if s.opts.DefaultTenantSlug == "" {
		return nil
	}
	_, err = s.tenants.GetBySlug(ctx, s.opts.DefaultTenantSlug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, tenant.ErrTenantNotFound) {
		return fmt.Errorf("failed to look up default tenant: %w", err)
	}

	t, err := s.tenants.CreateTenant(ctx, tenant.CreateInput{
		Slug:   s.opts.DefaultTenantSlug,
		Name:   s.opts.DefaultTenantName,
		Locale: s.opts.DefaultLocale,
	}, user.ID)
	if err != nil {
		return fmt.Errorf("failed to create default tenant: %w", err)
	}
	slog.InfoContext(ctx, "default tenant created", logger.TenantSlug(t.Slug), logger.TenantID(t.ID))
	return nil
}
