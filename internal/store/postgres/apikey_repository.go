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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claimdesk/claimdesk/internal/apikey"
)

const apiKeyColumns = `id, tenant_id, label, key_prefix, key_hash, scopes, active, last_used_at, created_at, updated_at`

// APIKeyRepository implements apikey.Repository
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a key. Only the hash of the secret is persisted.
func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) error {
	scopes := key.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO api_keys (id, tenant_id, label, key_prefix, key_hash, scopes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, key.ID, key.TenantID, key.Label, key.KeyPrefix, key.KeyHash, scopes, key.Active, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetByID retrieves a key within a tenant
func (r *APIKeyRepository) GetByID(ctx context.Context, tenantID, id string) (*apikey.APIKey, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanAPIKey(row)
}

// GetByHash retrieves a key by the hash of its secret
func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*apikey.APIKey, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	return scanAPIKey(row)
}

// ListByTenant lists a tenant's keys, newest first
func (r *APIKeyRepository) ListByTenant(ctx context.Context, tenantID string) ([]*apikey.APIKey, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikey.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Update saves label and scopes
func (r *APIKeyRepository) Update(ctx context.Context, key *apikey.APIKey) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE api_keys SET label = $3, scopes = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2
	`, key.TenantID, key.ID, key.Label, key.Scopes, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}
	return nil
}

// SetActive flips the active flag
func (r *APIKeyRepository) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE api_keys SET active = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set api key state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}
	return nil
}

// Delete removes a key
func (r *APIKeyRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM api_keys WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apikey.ErrKeyNotFound
	}
	return nil
}

// TouchLastUsed records key usage. Older timestamps never overwrite newer ones.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2
		WHERE id = $1 AND (last_used_at IS NULL OR last_used_at < $2)
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var key apikey.APIKey
	var lastUsed sql.NullTime
	err := row.Scan(
		&key.ID, &key.TenantID, &key.Label, &key.KeyPrefix, &key.KeyHash,
		&key.Scopes, &key.Active, &lastUsed, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	return &key, nil
}
