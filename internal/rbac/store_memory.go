package rbac

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory RoleStore used by tests and local tooling.
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewMemoryStore constructs a MemoryStore holding the given roles.
func NewMemoryStore(roles ...Role) *MemoryStore {
	store := &MemoryStore{roles: make(map[string]Role, len(roles))}
	for _, role := range roles {
		store.roles[role.Name] = role
	}
	return store
}

// GetRole fetches a role by name.
func (s *MemoryStore) GetRole(ctx context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// GetRoles returns the documents for every existing name in names.
func (s *MemoryStore) GetRoles(ctx context.Context, names []string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roles []Role
	for _, name := range names {
		if role, ok := s.roles[name]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// ListRoles returns all roles.
func (s *MemoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	return roles, nil
}

// UpsertRole inserts or replaces a role.
func (s *MemoryStore) UpsertRole(ctx context.Context, role Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.roles[role.Name]; ok {
		role.CreatedAt = existing.CreatedAt
	} else {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	if role.Permissions == nil {
		role.Permissions = map[string]bool{}
	}
	s.roles[role.Name] = role
	return role, nil
}

var _ RoleStore = (*MemoryStore)(nil)
