package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantMismatch     = errors.New("tenant does not match api key")
	ErrSlugTaken          = errors.New("tenant slug already in use")
	ErrInvalidSlug        = errors.New("invalid tenant slug")
	ErrNameRequired       = errors.New("tenant name is required")
	ErrTenantHasMembers   = errors.New("tenant still has members")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrAlreadyMember      = errors.New("user is already a member of this tenant")
	ErrInvalidRole        = errors.New("invalid tenant role")
	ErrLastAdmin          = errors.New("cannot remove the last tenant admin")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
}

// MembershipRepository defines the interface for membership storage
type MembershipRepository interface {
	Add(ctx context.Context, m *Membership) error
	Get(ctx context.Context, tenantID, userID string) (*Membership, error)
	Remove(ctx context.Context, tenantID, userID string) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Member, error)
	ListByUser(ctx context.Context, userID string) ([]*UserTenant, error)
	CountByRole(ctx context.Context, tenantID string) (map[string]int64, error)
}

// Subscriptions is the billing side of the tenant lifecycle.
type Subscriptions interface {
	CreateFree(ctx context.Context, tenantID string) error
	CancelForTenant(ctx context.Context, tenantID, reason string) error
}
