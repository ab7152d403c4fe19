package users

import (
	"time"

	"github.com/bugtrail/bugtrail/internal/shared"
)

// User represents a registered account. Role labels reference role documents
// by name; the permission maps themselves live in the role store.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity converts the user into the request-context identity value.
func (u User) Identity() *shared.Identity {
	return &shared.Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Roles: append([]string(nil), u.Roles...),
	}
}
