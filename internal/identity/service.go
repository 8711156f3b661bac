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
	"net/mail"
	"strings"
	"time"

	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/id"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
)

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	hasher             *PasswordHasher
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time
}

// NewService creates a new identity service
func NewService(repo UserRepository, hasher *PasswordHasher, lockoutMaxAttempts int, lockoutDuration time.Duration) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// NewUser describes an account to create
type NewUser struct {
	Email      string
	FullName   string
	Password   string
	GlobalRole authz.GlobalRole
}

// Create registers a user with a password credential
func (s *Service) Create(ctx context.Context, in NewUser) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if !isStrongPassword(in.Password) {
		return nil, ErrWeakPassword
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := in.GlobalRole
	if role == "" {
		role = authz.GlobalRoleUser
	}
	now := s.now().UTC()
	user := &User{
		ID:         id.NewUUIDv7(),
		Email:      email,
		FullName:   strings.TrimSpace(in.FullName),
		GlobalRole: role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, user, hash); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// FindOrCreate returns the user registered under in.Email, creating it when
// absent. created reports whether a new account was made.
func (s *Service) FindOrCreate(ctx context.Context, in NewUser) (user *User, created bool, err error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, false, err
	}
	user, err = s.repo.GetByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	user, err = s.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Authenticate checks an email and password. Repeated failures lock the
// account for the configured duration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if user.Locked(now) {
		return nil, ErrAccountLocked
	}

	hash, err := s.repo.GetPasswordHash(ctx, user.ID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, hash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if s.lockoutMaxAttempts > 0 && attempts >= s.lockoutMaxAttempts {
			until := now.Add(s.lockoutDuration)
			lockedUntil = &until
			slog.WarnContext(ctx, "account locked after repeated login failures",
				logger.UserID(user.ID), slog.Int("attempts", attempts))
		}
		if err := s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil); err != nil {
			slog.ErrorContext(ctx, "failed to record login failure", logger.UserID(user.ID), logger.Error(err))
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.repo.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			slog.ErrorContext(ctx, "failed to reset lockout", logger.UserID(user.ID), logger.Error(err))
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// GetByEmail retrieves a user by email
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// PromoteSuperadmin grants the platform superadmin role
func (s *Service) PromoteSuperadmin(ctx context.Context, userID string) error {
	return s.repo.SetGlobalRole(ctx, userID, authz.GlobalRoleSuperadmin)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) < 3 || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}
