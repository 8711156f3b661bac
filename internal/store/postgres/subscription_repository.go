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

	"github.com/claimdesk/claimdesk/internal/billing"
)

// SubscriptionRepository implements billing.Repository
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create stores the tenant's subscription. A tenant has at most one.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO subscriptions (
			tenant_id, plan, status, billing_cycle_start, billing_cycle_end, auto_renew,
			metadata, cancelled_at, cancellation_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sub.TenantID, string(sub.Plan), string(sub.Status), sub.BillingCycleStart, sub.BillingCycleEnd,
		sub.AutoRenew, metadataOrEmpty(sub.Metadata), sub.CancelledAt, sub.CancellationReason,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetByTenant retrieves the tenant's subscription
func (r *SubscriptionRepository) GetByTenant(ctx context.Context, tenantID string) (*billing.Subscription, error) {
	var sub billing.Subscription
	var plan, status string
	var cancelledAt sql.NullTime
	err := r.db.pool.QueryRow(ctx, `
		SELECT tenant_id, plan, status, billing_cycle_start, billing_cycle_end, auto_renew,
			metadata, cancelled_at, cancellation_reason, created_at, updated_at
		FROM subscriptions
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&sub.TenantID, &plan, &status, &sub.BillingCycleStart, &sub.BillingCycleEnd, &sub.AutoRenew,
		&sub.Metadata, &cancelledAt, &sub.CancellationReason, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.Plan = billing.PlanName(plan)
	sub.Status = billing.Status(status)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		sub.CancelledAt = &t
	}
	return &sub, nil
}

// Update saves every mutable subscription field
func (r *SubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan = $2, status = $3, billing_cycle_start = $4, billing_cycle_end = $5, auto_renew = $6,
			metadata = $7, cancelled_at = $8, cancellation_reason = $9, updated_at = $10
		WHERE tenant_id = $1
	`, sub.TenantID, string(sub.Plan), string(sub.Status), sub.BillingCycleStart, sub.BillingCycleEnd,
		sub.AutoRenew, metadataOrEmpty(sub.Metadata), sub.CancelledAt, sub.CancellationReason, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// UsageCounter implements billing.UsageCounter over live rows
type UsageCounter struct {
	db *DB
}

// NewUsageCounter creates a usage counter
func NewUsageCounter(db *DB) *UsageCounter {
	return &UsageCounter{db: db}
}

func (u *UsageCounter) CountMembers(ctx context.Context, tenantID string) (int64, error) {
	return u.count(ctx, `SELECT COUNT(*) FROM memberships WHERE tenant_id = $1`, tenantID)
}

func (u *UsageCounter) CountActiveAPIKeys(ctx context.Context, tenantID string) (int64, error) {
	return u.count(ctx, `SELECT COUNT(*) FROM api_keys WHERE tenant_id = $1 AND active`, tenantID)
}

func (u *UsageCounter) CountClaimsSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	return u.count(ctx, `SELECT COUNT(*) FROM claims WHERE tenant_id = $1 AND created_at >= $2`, tenantID, since)
}

func (u *UsageCounter) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := u.db.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}
