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
	"strings"

	"github.com/claimdesk/claimdesk/internal/authz"
)

// Resolver maps a request's tenant designator onto a tenant record.
type Resolver struct {
	repo Repository
}

// NewResolver creates a new tenant resolver
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads the tenant for id. An API key's bound tenant wins over the
// slug; a different slug is ErrTenantMismatch. Session callers resolve the
// slug directly.
func (r *Resolver) Resolve(ctx context.Context, id authz.Identity, slug string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))

	switch caller := id.(type) {
	case authz.APIKeyIdentity:
		bound, err := r.repo.GetByID(ctx, caller.TenantID)
		if err != nil {
			return nil, err
		}
		if slug != "" && slug != bound.Slug {
			return nil, ErrTenantMismatch
		}
		return bound, nil

	case authz.SessionIdentity:
		if slug == "" {
			return nil, ErrTenantNotFound
		}
		return r.repo.GetBySlug(ctx, slug)

	default:
		return nil, errors.New("unsupported identity")
	}
}
