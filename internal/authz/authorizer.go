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

package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNotMember         = errors.New("not a member of this tenant")
	ErrInsufficientRole  = errors.New("insufficient role")
	ErrInsufficientScope = errors.New("insufficient api key scope")
	ErrUnknownIdentity   = errors.New("unknown identity type")
)

// MembershipLookup resolves a user's role inside a tenant. It returns
// ErrNotMember when no membership exists.
type MembershipLookup interface {
	RoleFor(ctx context.Context, tenantID, userID string) (Role, error)
}

// Requirement is what a route demands of its caller.
type Requirement struct {
	// Roles accepted for session callers. Empty means any member.
	Roles []Role
	// Scope required of API key callers. Empty closes the route to keys.
	Scope string
	// AllowSuperadmin lets a superadmin act as tenant admin without a
	// membership. Only platform-management routes set it.
	AllowSuperadmin bool
}

// Grant is the outcome of a successful authorization.
type Grant struct {
	// Role is empty for API key callers.
	Role Role
	// Superadmin is set when the grant came from the platform role.
	Superadmin bool
}

// Authorizer enforces tenant membership, roles and API key scopes.
type Authorizer struct {
	memberships MembershipLookup
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(memberships MembershipLookup) *Authorizer {
	return &Authorizer{memberships: memberships}
}

// Authorize checks id against req inside tenantID.
func (a *Authorizer) Authorize(ctx context.Context, id Identity, tenantID string, req Requirement) (Grant, error) {
	switch caller := id.(type) {
	case APIKeyIdentity:
		// The tenant resolver has already bound the key to tenantID.
		if req.Scope == "" || !caller.HasScope(req.Scope) {
			return Grant{}, ErrInsufficientScope
		}
		return Grant{}, nil

	case SessionIdentity:
		if caller.IsSuperadmin() && req.AllowSuperadmin {
			return Grant{Role: RoleAdmin, Superadmin: true}, nil
		}

		role, err := a.memberships.RoleFor(ctx, tenantID, caller.UserID)
		if err != nil {
			if errors.Is(err, ErrNotMember) {
				return Grant{}, ErrNotMember
			}
			return Grant{}, fmt.Errorf("failed to resolve membership: %w", err)
		}

		if len(req.Roles) > 0 && !slices.Contains(req.Roles, role) {
			return Grant{Role: role}, ErrInsufficientRole
		}
		return Grant{Role: role}, nil

	default:
		return Grant{}, ErrUnknownIdentity
	}
}
