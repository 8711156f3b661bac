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

// Identity is the authenticated caller. It is one of SessionIdentity or
// APIKeyIdentity; consumers switch on the concrete type.
type Identity interface {
	// Subject returns a stable identifier for logs and audit rows.
	Subject() string
	isIdentity()
}

// SessionIdentity is a user authenticated by a session token.
type SessionIdentity struct {
	UserID     string
	Email      string
	GlobalRole GlobalRole
}

func (s SessionIdentity) Subject() string { return s.UserID }
func (SessionIdentity) isIdentity()       {}

// IsSuperadmin reports whether the user holds the platform-wide role.
func (s SessionIdentity) IsSuperadmin() bool {
	return s.GlobalRole == GlobalRoleSuperadmin
}

// APIKeyIdentity is a tenant-bound API key. It never carries a user.
type APIKeyIdentity struct {
	KeyID    string
	TenantID string
	Scopes   []string
}

func (k APIKeyIdentity) Subject() string { return "apikey:" + k.KeyID }
func (APIKeyIdentity) isIdentity()       {}

// HasScope reports whether the key was issued with scope.
func (k APIKeyIdentity) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// UserID returns the user behind id, or "" for API keys.
func UserID(id Identity) string {
	if s, ok := id.(SessionIdentity); ok {
		return s.UserID
	}
	return ""
}

// APIKeyID returns the key behind id, or "" for sessions.
func APIKeyID(id Identity) string {
	if k, ok := id.(APIKeyIdentity); ok {
		return k.KeyID
	}
	return ""
}
