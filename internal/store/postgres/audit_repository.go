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
	"fmt"
	"strings"

	"github.com/claimdesk/claimdesk/internal/audit"
)

const (
	defaultAuditPage = 50
	maxAuditPage     = 500
)

// AuditRepository implements audit.Repository. Rows are never updated.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one entry
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, user_id, api_key_id, action, resource_type, resource_id,
			old_values, new_values, changes, ip_address, user_agent, status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, e.ID, nullable(e.TenantID), nullable(e.UserID), nullable(e.APIKeyID),
		string(e.Action), e.ResourceType, e.ResourceID,
		rawOrNil(e.OldValues), rawOrNil(e.NewValues), rawOrNil(e.Changes),
		e.IPAddress, e.UserAgent, string(e.Status), e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// List returns a tenant's entries, newest first
func (r *AuditRepository) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	if f.TenantID == "" {
		return nil, fmt.Errorf("audit list requires a tenant")
	}

	where := []string{"tenant_id = $1"}
	args := []any{f.TenantID}
	if f.Action != "" {
		args = append(args, string(f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		where = append(where, fmt.Sprintf("resource_type = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditPage
	}
	if limit > maxAuditPage {
		limit = maxAuditPage
	}
	args = append(args, limit, max(f.Offset, 0))

	query := fmt.Sprintf(`
		SELECT id, COALESCE(tenant_id::text, ''), COALESCE(user_id::text, ''), COALESCE(api_key_id::text, ''),
			action, resource_type, resource_id, old_values, new_values, changes,
			ip_address, user_agent, status, reason, created_at
		FROM audit_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var action, status string
		var oldValues, newValues, changes []byte
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.UserID, &e.APIKeyID,
			&action, &e.ResourceType, &e.ResourceID, &oldValues, &newValues, &changes,
			&e.IPAddress, &e.UserAgent, &status, &e.Reason, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.Status = audit.Status(status)
		e.OldValues, e.NewValues, e.Changes = oldValues, newValues, changes
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rawOrNil keeps empty JSON out of jsonb columns.
func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
