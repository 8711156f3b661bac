package billing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrAlreadyCancelled     = errors.New("subscription already cancelled")
	ErrSamePlan             = errors.New("tenant is already on this plan")
)

// Status is the lifecycle state of a subscription
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Subscription binds one tenant to one plan
type Subscription struct {
	TenantID           string         `json:"tenant_id"`
	Plan               PlanName       `json:"plan"`
	Status             Status         `json:"status"`
	BillingCycleStart  time.Time      `json:"billing_cycle_start"`
	BillingCycleEnd    time.Time      `json:"billing_cycle_end"`
	AutoRenew          bool           `json:"auto_renew"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Active reports whether the subscription currently grants its plan.
func (s *Subscription) Active() bool {
	return s != nil && s.Status == StatusActive
}

// Repository defines the interface for subscription storage
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}

// UsageCounter counts quota-bound resources. Implementations must count
// persisted rows at call time.
type UsageCounter interface {
	CountMembers(ctx context.Context, tenantID string) (int64, error)
	CountActiveAPIKeys(ctx context.Context, tenantID string) (int64, error)
	CountClaimsSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
}

// UsagePeriodStart returns the start of the monthly usage period containing
// now. Periods are anchored on the billing cycle start; without a
// subscription they follow calendar months in UTC.
func UsagePeriodStart(sub *Subscription, now time.Time) time.Time {
	now = now.UTC()
	if sub == nil || sub.BillingCycleStart.IsZero() || sub.BillingCycleStart.After(now) {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	anchor := sub.BillingCycleStart.UTC()
	months := (now.Year()-anchor.Year())*12 + int(now.Month()-anchor.Month())
	start := anchor.AddDate(0, months, 0)
	for start.After(now) {
		months--
		start = anchor.AddDate(0, months, 0)
	}
	return start
}
