package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRoleNotFound indicates that the requested role does not exist. For the
// evaluator an absent role is a valid outcome that fails permission checks;
// only the admin endpoints surface it as 404.
var ErrRoleNotFound = errors.New("rbac: role not found")

// RoleStore is the durable source of truth for role → permission mappings.
// Implementations never cache across requests: a revoked permission takes
// effect on the next request.
type RoleStore interface {
	GetRole(ctx context.Context, name string) (Role, error)
	// GetRoles returns the stored documents for the given names. Absent
	// names are skipped, not errors.
	GetRoles(ctx context.Context, names []string) ([]Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	// UpsertRole replaces a role's permission map. Administrative use only,
	// never called on the request hot path.
	UpsertRole(ctx context.Context, role Role) (Role, error)
}

// PGStore implements RoleStore on PostgreSQL. Permission maps are stored as
// a JSONB document keyed by permission name.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed role store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetRole fetches a single role document by name.
func (s *PGStore) GetRole(ctx context.Context, name string) (Role, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT name, description, permissions, created_at, updated_at FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

// GetRoles fetches the documents for every existing name in names.
func (s *PGStore) GetRoles(ctx context.Context, names []string) ([]Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT name, description, permissions, created_at, updated_at FROM roles WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("rbac: get roles: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ListRoles returns all roles ordered by name.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, description, permissions, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	return collectRoles(rows)
}

// UpsertRole inserts or replaces the role document.
func (s *PGStore) UpsertRole(ctx context.Context, role Role) (Role, error) {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: marshal permissions: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description,
		   permissions = EXCLUDED.permissions, updated_at = NOW()
		 RETURNING name, description, permissions, created_at, updated_at`,
		role.Name, role.Description, perms)
	stored, err := scanRole(row)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: upsert role: %w", err)
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var (
		role      Role
		permsJSON []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&role.Name, &role.Description, &permsJSON, &createdAt, &updatedAt); err != nil {
		return Role{}, err
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &role.Permissions); err != nil {
			return Role{}, err
		}
	}
	if role.Permissions == nil {
		role.Permissions = map[string]bool{}
	}
	role.CreatedAt = createdAt
	role.UpdatedAt = updatedAt
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

var _ RoleStore = (*PGStore)(nil)
