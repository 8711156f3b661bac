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

package apikey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/id"
)

// Service manages the API key lifecycle
type Service struct {
	repo    Repository
	toucher *Toucher
	now     func() time.Time
}

// NewService creates a new API key service. toucher may be nil, in which
// case last-used timestamps are not recorded.
func NewService(repo Repository, toucher *Toucher) *Service {
	return &Service{repo: repo, toucher: toucher, now: time.Now}
}

// CreateInput describes a new key
type CreateInput struct {
	Label  string   `json:"label"`
	Scopes []string `json:"scopes"`
}

// Created is returned once on creation and is the only place the
// plaintext secret ever appears.
type Created struct {
	*APIKey
	Key string `json:"key"`
}

// Create issues a key bound to tenantID
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (*Created, error) {
	scopes := normalizeScopes(in.Scopes)
	if !authz.ValidScopes(scopes) {
		return nil, ErrInvalidScopes
	}

	plaintext, prefix, hash, err := Generate()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := &APIKey{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		Label:     strings.TrimSpace(in.Label),
		KeyPrefix: prefix,
		KeyHash:   hash,
		Scopes:    scopes,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	return &Created{APIKey: key, Key: plaintext}, nil
}

// List returns the tenant's keys
func (s *Service) List(ctx context.Context, tenantID string) ([]*APIKey, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// Get returns one of the tenant's keys
func (s *Service) Get(ctx context.Context, tenantID, keyID string) (*APIKey, error) {
	return s.repo.GetByID(ctx, tenantID, keyID)
}

// Stats reports the age and last use of a key
func (s *Service) Stats(ctx context.Context, tenantID, keyID string) (*Stats, error) {
	key, err := s.repo.GetByID(ctx, tenantID, keyID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	st := &Stats{
		ID:         key.ID,
		Active:     key.Active,
		LastUsedAt: key.LastUsedAt,
		AgeDays:    int(now.Sub(key.CreatedAt).Hours() / 24),
		ScopeCount: len(key.Scopes),
	}
	if key.LastUsedAt != nil {
		d := int(now.Sub(*key.LastUsedAt).Hours() / 24)
		st.DaysSinceLastUse = &d
	}
	return st, nil
}

// UpdateInput carries optional label and scope changes
type UpdateInput struct {
	Label  *string   `json:"label,omitempty"`
	Scopes *[]string `json:"scopes,omitempty"`
}

// Update changes a key's label or scopes; the secret never changes.
func (s *Service) Update(ctx context.Context, tenantID, keyID string, in UpdateInput) (before, after *APIKey, err error) {
	before, err = s.repo.GetByID(ctx, tenantID, keyID)
	if err != nil {
		return nil, nil, err
	}
	cp := *before
	after = &cp
	if in.Label != nil {
		after.Label = strings.TrimSpace(*in.Label)
	}
	if in.Scopes != nil {
		scopes := normalizeScopes(*in.Scopes)
		if !authz.ValidScopes(scopes) {
			return nil, nil, ErrInvalidScopes
		}
		after.Scopes = scopes
	}
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, after); err != nil {
		return nil, nil, fmt.Errorf("failed to update api key: %w", err)
	}
	return before, after, nil
}

// Revoke deactivates a key. The row is kept so the key can be reactivated.
func (s *Service) Revoke(ctx context.Context, tenantID, keyID string) (*APIKey, error) {
	return s.setActive(ctx, tenantID, keyID, false)
}

// Activate restores a revoked key with its original secret
func (s *Service) Activate(ctx context.Context, tenantID, keyID string) (*APIKey, error) {
	return s.setActive(ctx, tenantID, keyID, true)
}

func (s *Service) setActive(ctx context.Context, tenantID, keyID string, active bool) (*APIKey, error) {
	key, err := s.repo.GetByID(ctx, tenantID, keyID)
	if err != nil {
		return nil, err
	}
	if key.Active == active {
		if active {
			return nil, ErrAlreadyActive
		}
		return nil, ErrRevoked
	}
	if err := s.repo.SetActive(ctx, tenantID, keyID, active); err != nil {
		return nil, err
	}
	key.Active = active
	return key, nil
}

// Delete removes a key permanently
func (s *Service) Delete(ctx context.Context, tenantID, keyID string) (*APIKey, error) {
	key, err := s.repo.GetByID(ctx, tenantID, keyID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, tenantID, keyID); err != nil {
		return nil, err
	}
	return key, nil
}

// Authenticate resolves a plaintext key. Unknown and inactive keys both
// return ErrInvalidKey.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (*APIKey, error) {
	if !LooksValid(plaintext) {
		return nil, ErrInvalidKey
	}
	key, err := s.repo.GetByHash(ctx, Hash(plaintext))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	if !key.Active {
		return nil, ErrInvalidKey
	}
	if s.toucher != nil {
		s.toucher.Touch(ctx, key.ID)
	}
	return key, nil
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]bool, len(scopes))
	for _, sc := range scopes {
		sc = strings.TrimSpace(sc)
		if sc == "" || seen[sc] {
			continue
		}
		seen[sc] = true
		out = append(out, sc)
	}
	return out
}
