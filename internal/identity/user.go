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
	"time"

	"github.com/claimdesk/claimdesk/internal/authz"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
)

// User is a platform-wide account. Tenant access comes from memberships;
// GlobalRole only distinguishes platform superadmins.
type User struct {
	ID                  string
	Email               string
	FullName            string
	GlobalRole          authz.GlobalRole
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is locked at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Identity returns the session identity for u.
func (u *User) Identity() authz.SessionIdentity {
	return authz.SessionIdentity{UserID: u.ID, Email: u.Email, GlobalRole: u.GlobalRole}
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create stores the user together with its password hash
	Create(ctx context.Context, user *User, passwordHash string) error

	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail matches case-insensitively
	GetByEmail(ctx context.Context, email string) (*User, error)

	GetPasswordHash(ctx context.Context, userID string) (string, error)

	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	SetGlobalRole(ctx context.Context, userID string, role authz.GlobalRole) error
}
