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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors
var (
	ErrKeyNotFound   = errors.New("api key not found")
	ErrInvalidKey    = errors.New("invalid api key")
	ErrInvalidScopes = errors.New("invalid api key scopes")
	ErrAlreadyActive = errors.New("api key is already active")
	ErrRevoked       = errors.New("api key is already revoked")
)

const (
	// Prefix marks plaintext keys so they are recognisable in leaked text.
	Prefix = "cdk_"

	secretBytes   = 32
	displayLength = 8
)

// APIKey is a tenant-bound credential. Only the hash of the secret is kept.
type APIKey struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Label      string     `json:"label"`
	KeyPrefix  string     `json:"key_prefix"`
	KeyHash    string     `json:"-"`
	Scopes     []string   `json:"scopes"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Stats summarises a key's usage
type Stats struct {
	ID               string     `json:"id"`
	Active           bool       `json:"active"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	AgeDays          int        `json:"age_days"`
	DaysSinceLastUse *int       `json:"days_since_last_use,omitempty"`
	ScopeCount       int        `json:"scope_count"`
}

// Repository defines the interface for API key persistence. Every method
// that takes a tenantID filters on it.
type Repository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByID(ctx context.Context, tenantID, id string) (*APIKey, error)
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error
	SetActive(ctx context.Context, tenantID, id string, active bool) error
	Delete(ctx context.Context, tenantID, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// Generate returns a new plaintext key with its display prefix and hash.
func Generate() (plaintext, displayPrefix, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("failed to generate api key: %w", err)
	}
	plaintext = Prefix + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, plaintext[:displayLength], Hash(plaintext), nil
}

// Hash returns the lookup hash of a plaintext key
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// LooksValid is a cheap shape check done before hashing
func LooksValid(plaintext string) bool {
	return strings.HasPrefix(plaintext, Prefix) && len(plaintext) > len(Prefix)+16 && len(plaintext) < 256
}
