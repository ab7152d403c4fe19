package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bugtrail/bugtrail/internal/rbac"
	"github.com/bugtrail/bugtrail/internal/shared"
)

type mockRepository struct {
	created       User
	replacedRoles []string
	createErr     error
	findErr       error
	users         map[int64]User
}

func (m *mockRepository) Create(_ context.Context, user User) (User, error) {
	if m.createErr != nil {
		return User{}, m.createErr
	}
	user.ID = 1
	user.IsActive = true
	m.created = user
	return user, nil
}

func (m *mockRepository) FindByID(_ context.Context, id int64) (User, error) {
	if m.findErr != nil {
		return User{}, m.findErr
	}
	user, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}

func (m *mockRepository) FindByEmail(_ context.Context, email string) (User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *mockRepository) List(_ context.Context) ([]User, error) {
	var list []User
	for _, user := range m.users {
		list = append(list, user)
	}
	return list, nil
}

func (m *mockRepository) UpdateProfile(_ context.Context, id int64, name, passwordHash string) (User, error) {
	user, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	if name != "" {
		user.Name = name
	}
	if passwordHash != "" {
		user.PasswordHash = passwordHash
	}
	m.users[id] = user
	return user, nil
}

func (m *mockRepository) ReplaceRoles(_ context.Context, id int64, roles []string) (User, error) {
	user, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	user.Roles = roles
	m.replacedRoles = roles
	m.users[id] = user
	return user, nil
}

func roleStoreWith(names ...string) rbac.RoleStore {
	roles := make([]rbac.Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, rbac.Role{Name: name, Permissions: map[string]bool{}})
	}
	return rbac.NewMemoryStore(roles...)
}

func TestRegisterAssignsDefaultRoleAndHashesPassword(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, roleStoreWith(DefaultRole))

	user, err := svc.Register(context.Background(), " Dana@Example.COM ", "  dana   reyes ", "hunter2secret")
	require.NoError(t, err)

	assert.Equal(t, "dana@example.com", user.Email)
	assert.Equal(t, "Dana Reyes", user.Name)
	assert.Equal(t, []string{DefaultRole}, user.Roles)
	assert.NotEqual(t, "hunter2secret", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter2secret")))
}

func TestAssignRolesRejectsUnknownLabel(t *testing.T) {
	repo := &mockRepository{users: map[int64]User{7: {ID: 7}}}
	svc := NewService(repo, roleStoreWith("user", "developer"))

	_, err := svc.AssignRoles(context.Background(), 7, []string{"developer", "wizard"})
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Nil(t, repo.replacedRoles)
}

func TestAssignRolesTrimsAndDeduplicates(t *testing.T) {
	repo := &mockRepository{users: map[int64]User{7: {ID: 7}}}
	svc := NewService(repo, roleStoreWith("user", "developer"))

	user, err := svc.AssignRoles(context.Background(), 7, []string{" developer ", "developer", "", "user"})
	require.NoError(t, err)
	assert.Equal(t, []string{"developer", "user"}, user.Roles)
}

func TestUpdateProfileKeepsPasswordWhenEmpty(t *testing.T) {
	repo := &mockRepository{users: map[int64]User{7: {ID: 7, Name: "Old", PasswordHash: "keep"}}}
	svc := NewService(repo, roleStoreWith("user"))

	user, err := svc.UpdateProfile(context.Background(), 7, "new name", "")
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.Name)
	assert.Equal(t, "keep", user.PasswordHash)
}

var _ Repository = (*mockRepository)(nil)
