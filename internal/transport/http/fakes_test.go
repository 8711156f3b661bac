package http

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/claim"
	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/tenant"
)

// memStore backs every repository the router needs with maps
type memStore struct {
	mu            sync.Mutex
	tenants       map[string]*tenant.Tenant
	users         map[string]*identity.User
	passwords     map[string]string
	memberships   []*tenant.Membership
	keys          map[string]*apikey.APIKey
	subscriptions map[string]*billing.Subscription
	claims        map[string]*claim.Claim
	audit         []*audit.Entry
}

func newMemStore() *memStore {
	return &memStore{
		tenants:       map[string]*tenant.Tenant{},
		users:         map[string]*identity.User{},
		passwords:     map[string]string{},
		keys:          map[string]*apikey.APIKey{},
		subscriptions: map[string]*billing.Subscription{},
		claims:        map[string]*claim.Claim{},
	}
}

type tenantRepo struct{ *memStore }

func (s tenantRepo) Create(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if existing.Slug == t.Slug {
			return tenant.ErrSlugTaken
		}
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s tenantRepo) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (s tenantRepo) GetBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (s tenantRepo) Update(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return tenant.ErrTenantNotFound
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s tenantRepo) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return tenant.ErrTenantNotFound
	}
	delete(s.tenants, id)
	s.memberships = slices.DeleteFunc(s.memberships, func(m *tenant.Membership) bool { return m.TenantID == id })
	return nil
}

func (s tenantRepo) List(_ context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type memberRepo struct{ *memStore }

func (s memberRepo) Add(_ context.Context, m *tenant.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.memberships {
		if existing.TenantID == m.TenantID && existing.UserID == m.UserID {
			return tenant.ErrAlreadyMember
		}
	}
	cp := *m
	s.memberships = append(s.memberships, &cp)
	return nil
}

func (s memberRepo) Get(_ context.Context, tenantID, userID string) (*tenant.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.TenantID == tenantID && m.UserID == userID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, tenant.ErrMembershipNotFound
}

func (s memberRepo) Remove(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.memberships)
	s.memberships = slices.DeleteFunc(s.memberships, func(m *tenant.Membership) bool {
		return m.TenantID == tenantID && m.UserID == userID
	})
	if len(s.memberships) == n {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

func (s memberRepo) ListByTenant(_ context.Context, tenantID string) ([]*tenant.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tenant.Member
	for _, m := range s.memberships {
		if m.TenantID != tenantID {
			continue
		}
		member := &tenant.Member{Membership: *m}
		if u, ok := s.users[m.UserID]; ok {
			member.Email, member.FullName = u.Email, u.FullName
		}
		out = append(out, member)
	}
	return out, nil
}

func (s memberRepo) ListByUser(_ context.Context, userID string) ([]*tenant.UserTenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tenant.UserTenant
	for _, m := range s.memberships {
		if m.UserID != userID {
			continue
		}
		t := s.tenants[m.TenantID]
		out = append(out, &tenant.UserTenant{TenantID: t.ID, TenantSlug: t.Slug, TenantName: t.Name, Role: m.Role})
	}
	return out, nil
}

func (s memberRepo) CountByRole(_ context.Context, tenantID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, m := range s.memberships {
		if m.TenantID == tenantID {
			counts[string(m.Role)]++
		}
	}
	return counts, nil
}

type userRepo struct{ *memStore }

func (s userRepo) Create(_ context.Context, u *identity.User, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return identity.ErrUserAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	s.passwords[u.ID] = hash
	return nil
}

func (s userRepo) GetByID(_ context.Context, id string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s userRepo) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (s userRepo) GetPasswordHash(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.passwords[userID]
	if !ok {
		return "", identity.ErrUserNotFound
	}
	return hash, nil
}

func (s userRepo) UpdateLockout(_ context.Context, userID string, attempts int, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts, u.LockedUntil = attempts, until
	return nil
}

func (s userRepo) SetGlobalRole(_ context.Context, userID string, role authz.GlobalRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.GlobalRole = role
	return nil
}

type keyRepo struct{ *memStore }

func (s keyRepo) Create(_ context.Context, k *apikey.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s keyRepo) GetByID(_ context.Context, tenantID, id string) (*apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.TenantID != tenantID {
		return nil, apikey.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s keyRepo) GetByHash(_ context.Context, hash string) (*apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, apikey.ErrKeyNotFound
}

func (s keyRepo) ListByTenant(_ context.Context, tenantID string) ([]*apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*apikey.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s keyRepo) Update(_ context.Context, k *apikey.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.keys[k.ID]
	if !ok || existing.TenantID != k.TenantID {
		return apikey.ErrKeyNotFound
	}
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s keyRepo) SetActive(_ context.Context, tenantID, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.TenantID != tenantID {
		return apikey.ErrKeyNotFound
	}
	k.Active = active
	return nil
}

func (s keyRepo) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.TenantID != tenantID {
		return apikey.ErrKeyNotFound
	}
	delete(s.keys, id)
	return nil
}

func (s keyRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		k.LastUsedAt = &at
	}
	return nil
}

type subscriptionRepo struct{ *memStore }

func (s subscriptionRepo) Create(_ context.Context, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subscriptions[sub.TenantID] = &cp
	return nil
}

func (s subscriptionRepo) GetByTenant(_ context.Context, tenantID string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[tenantID]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s subscriptionRepo) Update(_ context.Context, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.TenantID]; !ok {
		return billing.ErrSubscriptionNotFound
	}
	cp := *sub
	s.subscriptions[sub.TenantID] = &cp
	return nil
}

type usageCounter struct{ *memStore }

func (s usageCounter) CountMembers(_ context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.memberships {
		if m.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s usageCounter) CountActiveAPIKeys(_ context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range s.keys {
		if k.TenantID == tenantID && k.Active {
			n++
		}
	}
	return n, nil
}

func (s usageCounter) CountClaimsSince(_ context.Context, tenantID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.claims {
		if c.TenantID == tenantID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type claimRepo struct{ *memStore }

func (s claimRepo) CreateWithinQuota(_ context.Context, c *claim.Claim, q claim.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var used, seq int64
	for _, existing := range s.claims {
		if existing.TenantID != c.TenantID {
			continue
		}
		if !existing.CreatedAt.Before(q.Since) {
			used++
		}
		seq = max(seq, existing.Seq)
	}
	if q.Limit != nil && used >= *q.Limit {
		return &claim.QuotaExceeded{Usage: used, Limit: *q.Limit}
	}
	c.Seq = seq + 1
	c.Code = claim.FormatCode(c.CreatedAt.Year(), c.Seq)
	cp := *c
	s.claims[c.ID] = &cp
	return nil
}

func (s claimRepo) GetByID(_ context.Context, tenantID, id string) (*claim.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.TenantID != tenantID {
		return nil, claim.ErrClaimNotFound
	}
	cp := *c
	return &cp, nil
}

func (s claimRepo) List(_ context.Context, tenantID string, f claim.ListFilter) ([]*claim.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*claim.Claim
	for _, c := range s.claims {
		if c.TenantID == tenantID && (f.Status == "" || c.Status == f.Status) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s claimRepo) Update(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.claims[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return claim.ErrClaimNotFound
	}
	cp := *c
	s.claims[c.ID] = &cp
	return nil
}

func (s claimRepo) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.TenantID != tenantID {
		return claim.ErrClaimNotFound
	}
	delete(s.claims, id)
	return nil
}

type auditRepo struct{ *memStore }

func (s auditRepo) Append(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}

func (s auditRepo) List(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range s.audit {
		if e.TenantID == f.TenantID && (f.Action == "" || e.Action == f.Action) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) auditEntries() []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}
