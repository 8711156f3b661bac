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
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/claimdesk/claimdesk/internal/claim"
)

const claimColumns = `id, tenant_id, seq, code, customer_name, customer_email, subject, description,
	status, assignee_id, assigned_at, resolution, resolved_at, created_at, updated_at`

const (
	defaultClaimPage = 50
	maxClaimPage     = 200
)

// ClaimRepository implements claim.Repository
type ClaimRepository struct {
	db *DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// CreateWithinQuota serialises creates per tenant with a transaction-scoped
// advisory lock, so the count, sequence and insert see a stable view.
func (r *ClaimRepository) CreateWithinQuota(ctx context.Context, c *claim.Claim, q claim.Quota) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "claims:"+c.TenantID); err != nil {
		return fmt.Errorf("failed to lock tenant claims: %w", err)
	}

	if q.Limit != nil {
		var used int64
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM claims WHERE tenant_id = $1 AND created_at >= $2
		`, c.TenantID, q.Since).Scan(&used)
		if err != nil {
			return fmt.Errorf("failed to count claims: %w", err)
		}
		if used >= *q.Limit {
			return &claim.QuotaExceeded{Usage: used, Limit: *q.Limit}
		}
	}

	var seq int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM claims WHERE tenant_id = $1
	`, c.TenantID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate claim sequence: %w", err)
	}
	c.Seq = seq
	c.Code = claim.FormatCode(c.CreatedAt.Year(), seq)

	_, err = tx.Exec(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, c.ID, c.TenantID, c.Seq, c.Code, c.CustomerName, c.CustomerEmail, c.Subject, c.Description,
		string(c.Status), c.AssigneeID, c.AssignedAt, c.Resolution, c.ResolvedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}
	return nil
}

// GetByID retrieves a claim within a tenant
func (r *ClaimRepository) GetByID(ctx context.Context, tenantID, id string) (*claim.Claim, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+claimColumns+` FROM claims WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanClaim(row)
}

// List returns a tenant's claims, newest first
func (r *ClaimRepository) List(ctx context.Context, tenantID string, f claim.ListFilter) ([]*claim.Claim, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AssigneeID != "" {
		args = append(args, f.AssigneeID)
		where = append(where, fmt.Sprintf("assignee_id = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultClaimPage
	}
	if limit > maxClaimPage {
		limit = maxClaimPage
	}
	args = append(args, limit, max(f.Offset, 0))

	query := fmt.Sprintf(`
		SELECT %s FROM claims
		WHERE %s
		ORDER BY created_at DESC, seq DESC
		LIMIT $%d OFFSET $%d
	`, claimColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*claim.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// Update saves the mutable claim fields
func (r *ClaimRepository) Update(ctx context.Context, c *claim.Claim) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE claims
		SET customer_name = $3, customer_email = $4, subject = $5, description = $6, status = $7,
			assignee_id = $8, assigned_at = $9, resolution = $10, resolved_at = $11, updated_at = $12
		WHERE tenant_id = $1 AND id = $2
	`, c.TenantID, c.ID, c.CustomerName, c.CustomerEmail, c.Subject, c.Description, string(c.Status),
		c.AssigneeID, c.AssignedAt, c.Resolution, c.ResolvedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if result.RowsAffected() == 0 {
		return claim.ErrClaimNotFound
	}
	return nil
}

// Delete removes a claim
func (r *ClaimRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM claims WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	if result.RowsAffected() == 0 {
		return claim.ErrClaimNotFound
	}
	return nil
}

func scanClaim(row pgx.Row) (*claim.Claim, error) {
	var c claim.Claim
	var status string
	var assignee sql.NullString
	var assignedAt, resolvedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Seq, &c.Code, &c.CustomerName, &c.CustomerEmail, &c.Subject, &c.Description,
		&status, &assignee, &assignedAt, &c.Resolution, &resolvedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, claim.ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}
	c.Status = claim.Status(status)
	if assignee.Valid {
		s := assignee.String
		c.AssigneeID = &s
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		c.AssignedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}
