package userrepo_test

import (
	"context"

	userrepo "github.com/eedrummer/simple-user-repository"
	"github.com/stretchr/testify/mock"
)

// MockStore implements userrepo.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByUsername(ctx context.Context, username string) (*userrepo.User, error) {
	args := m.Called(ctx, username)
	var user *userrepo.User
	if v := args.Get(0); v != nil {
		user = v.(*userrepo.User)
	}
	return user, args.Error(1)
}

func (m *MockStore) FindByID(ctx context.Context, id string) (*userrepo.User, error) {
	args := m.Called(ctx, id)
	var user *userrepo.User
	if v := args.Get(0); v != nil {
		user = v.(*userrepo.User)
	}
	return user, args.Error(1)
}

func (m *MockStore) FindByAttribute(ctx context.Context, name, value string) ([]*userrepo.User, error) {
	args := m.Called(ctx, name, value)
	var users []*userrepo.User
	if v := args.Get(0); v != nil {
		users = v.([]*userrepo.User)
	}
	return users, args.Error(1)
}

func (m *MockStore) FindByPattern(ctx context.Context, likePattern string) ([]*userrepo.User, error) {
	args := m.Called(ctx, likePattern)
	var users []*userrepo.User
	if v := args.Get(0); v != nil {
		users = v.([]*userrepo.User)
	}
	return users, args.Error(1)
}

func (m *MockStore) FindRange(ctx context.Context, offset, count int, sort userrepo.SortKey) ([]*userrepo.User, error) {
	args := m.Called(ctx, offset, count, sort)
	var users []*userrepo.User
	if v := args.Get(0); v != nil {
		users = v.([]*userrepo.User)
	}
	return users, args.Error(1)
}

func (m *MockStore) ListAll(ctx context.Context) ([]*userrepo.User, error) {
	args := m.Called(ctx)
	var users []*userrepo.User
	if v := args.Get(0); v != nil {
		users = v.([]*userrepo.User)
	}
	return users, args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, user *userrepo.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, user *userrepo.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, user *userrepo.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStore) FindOrCreateRole(ctx context.Context, name string) (*userrepo.Role, error) {
	args := m.Called(ctx, name)
	var role *userrepo.Role
	if v := args.Get(0); v != nil {
		role = v.(*userrepo.Role)
	}
	return role, args.Error(1)
}

func (m *MockStore) DeleteRole(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockStore) FindByRole(ctx context.Context, name string) ([]*userrepo.User, error) {
	args := m.Called(ctx, name)
	var users []*userrepo.User
	if v := args.Get(0); v != nil {
		users = v.([]*userrepo.User)
	}
	return users, args.Error(1)
}

func (m *MockStore) AttachRole(ctx context.Context, user *userrepo.User, role *userrepo.Role) error {
	args := m.Called(ctx, user, role)
	return args.Error(0)
}

var _ userrepo.Store = (*MockStore)(nil)
