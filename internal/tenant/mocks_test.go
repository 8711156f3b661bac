package tenant

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*Tenant), args.Error(1)
}

type mockMembers struct {
	mock.Mock
}

func (m *mockMembers) Add(ctx context.Context, mem *Membership) error {
	args := m.Called(ctx, mem)
	return args.Error(0)
}

func (m *mockMembers) Get(ctx context.Context, tenantID, userID string) (*Membership, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Membership), args.Error(1)
}

func (m *mockMembers) Remove(ctx context.Context, tenantID, userID string) error {
	args := m.Called(ctx, tenantID, userID)
	return args.Error(0)
}

func (m *mockMembers) ListByTenant(ctx context.Context, tenantID string) ([]*Member, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]*Member), args.Error(1)
}

func (m *mockMembers) ListByUser(ctx context.Context, userID string) ([]*UserTenant, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*UserTenant), args.Error(1)
}

func (m *mockMembers) CountByRole(ctx context.Context, tenantID string) (map[string]int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(map[string]int64), args.Error(1)
}

type mockSubscriptions struct {
	mock.Mock
}

func (m *mockSubscriptions) CreateFree(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *mockSubscriptions) CancelForTenant(ctx context.Context, tenantID, reason string) error {
	args := m.Called(ctx, tenantID, reason)
	return args.Error(0)
}
