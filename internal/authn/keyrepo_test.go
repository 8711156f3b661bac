package authn

import (
	"context"
	"time"

	"github.com/claimdesk/claimdesk/internal/apikey"
)

// keyRepo is a minimal in-memory apikey.Repository
type keyRepo struct {
	keys map[string]*apikey.APIKey
}

func newKeyRepo() *keyRepo { return &keyRepo{keys: map[string]*apikey.APIKey{}} }

func (r *keyRepo) Create(_ context.Context, k *apikey.APIKey) error {
	cp := *k
	r.keys[k.ID] = &cp
	return nil
}

func (r *keyRepo) GetByID(_ context.Context, tenantID, id string) (*apikey.APIKey, error) {
	if k, ok := r.keys[id]; ok && k.TenantID == tenantID {
		cp := *k
		return &cp, nil
	}
	return nil, apikey.ErrKeyNotFound
}

func (r *keyRepo) GetByHash(_ context.Context, hash string) (*apikey.APIKey, error) {
	for _, k := range r.keys {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, apikey.ErrKeyNotFound
}

func (r *keyRepo) ListByTenant(context.Context, string) ([]*apikey.APIKey, error) { return nil, nil }

func (r *keyRepo) Update(_ context.Context, k *apikey.APIKey) error {
	r.keys[k.ID] = k
	return nil
}

func (r *keyRepo) SetActive(_ context.Context, _ string, id string, active bool) error {
	r.keys[id].Active = active
	return nil
}

func (r *keyRepo) Delete(_ context.Context, _ string, id string) error {
	delete(r.keys, id)
	return nil
}

func (r *keyRepo) TouchLastUsed(context.Context, string, time.Time) error { return nil }
