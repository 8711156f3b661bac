package claim

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrClaimNotFound        = errors.New("claim not found")
	ErrInvalidClaim         = errors.New("invalid claim")
	ErrInvalidTransition    = errors.New("invalid claim status transition")
	ErrAssigneeNotMember    = errors.New("assignee is not a member of this tenant")
	ErrResolutionRequired   = errors.New("resolution is required")
	ErrClaimAlreadyResolved = errors.New("claim is already resolved")
)

// Status is the lifecycle position of a claim
type Status string

const (
	StatusOpen     Status = "open"
	StatusAssigned Status = "assigned"
	StatusResolved Status = "resolved"
)

// Claim is a customer complaint registered under a tenant
type Claim struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Code          string     `json:"code"`
	Seq           int64      `json:"-"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Subject       string     `json:"subject"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	AssigneeID    *string    `json:"assignee_id,omitempty"`
	AssignedAt    *time.Time `json:"assigned_at,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FormatCode renders the public claim code, e.g. CLM-2026-000042.
func FormatCode(year int, seq int64) string {
	return fmt.Sprintf("CLM-%d-%06d", year, seq)
}

// Quota bounds an insert: at most Limit claims created since Since. A nil
// Limit is unlimited.
type Quota struct {
	Limit *int64
	Since time.Time
}

// QuotaExceeded is returned by CreateWithinQuota when the period is full.
type QuotaExceeded struct {
	Usage int64
	Limit int64
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("claim quota exceeded (%d/%d)", e.Usage, e.Limit)
}

// ListFilter narrows a listing
type ListFilter struct {
	Status     Status
	AssigneeID string
	Limit      int
	Offset     int
}

// Repository defines claim persistence. All reads and writes are scoped to
// a tenant.
type Repository interface {
	// CreateWithinQuota counts and inserts atomically per tenant, assigning
	// Seq and Code. It returns *QuotaExceeded when q is exhausted.
	CreateWithinQuota(ctx context.Context, c *Claim, q Quota) error
	GetByID(ctx context.Context, tenantID, id string) (*Claim, error)
	List(ctx context.Context, tenantID string, f ListFilter) ([]*Claim, error)
	Update(ctx context.Context, c *Claim) error
	Delete(ctx context.Context, tenantID, id string) error
}
