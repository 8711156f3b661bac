package billing

import (
	"context"
	"sync"
	"time"
)

type memRepo struct {
	mu   sync.Mutex
	subs map[string]Subscription
	err  error
}

func newMemRepo() *memRepo {
	return &memRepo{subs: map[string]Subscription{}}
}

func (r *memRepo) Create(ctx context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.TenantID] = *sub
	return nil
}

func (r *memRepo) GetByTenant(ctx context.Context, tenantID string) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	sub, ok := r.subs[tenantID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (r *memRepo) Update(ctx context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.TenantID] = *sub
	return nil
}

// countingUsage tracks resources created through it and records every count call.
type countingUsage struct {
	mu     sync.Mutex
	claims []time.Time
	keys   int64
	users  int64
	calls  int
	err    error
}

func (u *countingUsage) CountMembers(ctx context.Context, tenantID string) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return u.users, u.err
}

func (u *countingUsage) CountActiveAPIKeys(ctx context.Context, tenantID string) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return u.keys, u.err
}

func (u *countingUsage) CountClaimsSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	var n int64
	for _, at := range u.claims {
		if !at.Before(since) {
			n++
		}
	}
	return n, u.err
}

func (u *countingUsage) createClaim(at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.claims = append(u.claims, at)
}
