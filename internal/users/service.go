package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bugtrail/bugtrail/internal/rbac"
)

// DefaultRole is assigned to every new registration until an administrator
// grants something more useful.
const DefaultRole = "user"

// Service wraps account business rules.
type Service struct {
	repo  Repository
	roles rbac.RoleStore
}

// NewService constructs a Service. The role store is consulted when
// assigning role labels so a label always references an existing document.
func NewService(repo Repository, roles rbac.RoleStore) *Service {
	return &Service{repo: repo, roles: roles}
}

// Register creates a new account carrying the default role.
func (s *Service) Register(ctx context.Context, email, name, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user := User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         s.normalizeName(name),
		PasswordHash: string(hash),
		Roles:        []string{DefaultRole},
	}
	return s.repo.Create(ctx, user)
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// UpdateProfile changes the display name and/or password.
func (s *Service) UpdateProfile(ctx context.Context, id int64, name, password string) (User, error) {
	var hash string
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		hash = string(hashed)
	}
	if name != "" {
		name = s.normalizeName(name)
	}
	return s.repo.UpdateProfile(ctx, id, name, hash)
}

// ErrUnknownRole reports a role label with no backing document.
var ErrUnknownRole = errors.New("users: unknown role")

// AssignRoles replaces the account's role labels. Every label must resolve
// in the role store.
func (s *Service) AssignRoles(ctx context.Context, id int64, roles []string) (User, error) {
	cleaned := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, label := range roles {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		if _, err := s.roles.GetRole(ctx, label); err != nil {
			if errors.Is(err, rbac.ErrRoleNotFound) {
				return User{}, fmt.Errorf("%w: %s", ErrUnknownRole, label)
			}
			return User{}, err
		}
		cleaned = append(cleaned, label)
	}
	return s.repo.ReplaceRoles(ctx, id, cleaned)
}

// normalizeName collapses whitespace and title-cases the display name.
// Casers are stateful, so one is built per call rather than shared.
func (s *Service) normalizeName(name string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(name), " "))
}
