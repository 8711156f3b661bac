package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// MembershipRepository implements tenant.MembershipRepository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Add inserts a membership. A second membership for the same pair is
// rejected by the unique constraint.
func (r *MembershipRepository) Add(ctx context.Context, m *tenant.Membership) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO memberships (id, tenant_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.TenantID, m.UserID, string(m.Role), m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrAlreadyMember
		}
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// Get returns the membership of a user in a tenant
func (r *MembershipRepository) Get(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	var m tenant.Membership
	var role string
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, role, created_at
		FROM memberships
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&m.ID, &m.TenantID, &m.UserID, &role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = authz.Role(role)
	return &m, nil
}

// Remove deletes a membership
func (r *MembershipRepository) Remove(ctx context.Context, tenantID, userID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM memberships WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

// ListByTenant lists members joined with their user record
func (r *MembershipRepository) ListByTenant(ctx context.Context, tenantID string) ([]*tenant.Member, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT m.id, m.tenant_id, m.user_id, m.role, m.created_at, u.email, u.full_name
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.tenant_id = $1
		ORDER BY m.created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*tenant.Member
	for rows.Next() {
		var m tenant.Member
		var role string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &role, &m.CreatedAt, &m.Email, &m.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = authz.Role(role)
		members = append(members, &m)
	}
	return members, rows.Err()
}

// ListByUser lists the tenants a user belongs to
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*tenant.UserTenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT t.id, t.slug, t.name, m.role
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1
		ORDER BY t.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user tenants: %w", err)
	}
	defer rows.Close()

	var out []*tenant.UserTenant
	for rows.Next() {
		var ut tenant.UserTenant
		var role string
		if err := rows.Scan(&ut.TenantID, &ut.TenantSlug, &ut.TenantName, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user tenant: %w", err)
		}
		ut.Role = authz.Role(role)
		out = append(out, &ut)
	}
	return out, rows.Err()
}

// CountByRole counts members per role
func (r *MembershipRepository) CountByRole(ctx context.Context, tenantID string) (map[string]int64, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role, COUNT(*) FROM memberships WHERE tenant_id = $1 GROUP BY role
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("failed to scan member count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}
