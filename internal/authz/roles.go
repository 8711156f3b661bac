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

import "slices"

// -----------------------------------------------------------------------------
// Tenant Roles
// A membership carries exactly one of these.
// -----------------------------------------------------------------------------

// Role is a tenant-scoped membership role.
type Role string

const (
	// RoleAdmin manages the tenant: members, API keys, billing, branding.
	RoleAdmin Role = "admin"

	// RoleStaff works claims inside the tenant.
	RoleStaff Role = "staff"
)

// Valid reports whether r is a known tenant role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// -----------------------------------------------------------------------------
// Global Roles
// Stored on the user row. Only superadmin has meaning outside a membership.
// -----------------------------------------------------------------------------

type GlobalRole string

const (
	GlobalRoleUser       GlobalRole = "user"
	GlobalRoleSuperadmin GlobalRole = "superadmin"
)

// -----------------------------------------------------------------------------
// API Key Scopes
// -----------------------------------------------------------------------------

const (
	ScopeClaimsRead  = "claims:read"
	ScopeClaimsWrite = "claims:write"
)

// KnownScopes lists every scope an API key may carry.
var KnownScopes = []string{
	ScopeClaimsRead,
	ScopeClaimsWrite,
}

// ValidScopes reports whether every scope in scopes is known.
func ValidScopes(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(KnownScopes, s) {
			return false
		}
	}
	return true
}
