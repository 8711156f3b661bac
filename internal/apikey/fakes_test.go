package apikey

import (
	"context"
	"sync"
	"time"
)

type memRepo struct {
	mu      sync.Mutex
	keys    map[string]*APIKey
	touched map[string]time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{keys: map[string]*APIKey{}, touched: map[string]time.Time{}}
}

func (m *memRepo) Create(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, tenantID, id string) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.TenantID != tenantID {
		return nil, ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *memRepo) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (m *memRepo) ListByTenant(_ context.Context, tenantID string) ([]*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*APIKey
	for _, k := range m.keys {
		if k.TenantID == tenantID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k.ID]; !ok {
		return ErrKeyNotFound
	}
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *memRepo) SetActive(_ context.Context, tenantID, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.TenantID != tenantID {
		return ErrKeyNotFound
	}
	k.Active = active
	return nil
}

func (m *memRepo) Delete(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.TenantID != tenantID {
		return ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *memRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = at
	return nil
}

func (m *memRepo) touchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.touched)
}
