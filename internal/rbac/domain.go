package rbac

import (
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// Role represents a high-level permission grouping.
type Role struct {
	shared.Entity
	Name        string       `db:"name" json:"name"`
	Description *string      `db:"description" json:"description,omitempty"`
	IsActive    bool         `db:"is_active" json:"is_active"`
	Permissions []Permission `db:"-" json:"permissions,omitempty"`
}

// Permission represents an atomic capability named action:resource.
type Permission struct {
	shared.Entity
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

// RoleUser grants a role to a user.
type RoleUser struct {
	shared.Entity
	UserID uuid.UUID `db:"user_id" json:"user_id"`
	RoleID uuid.UUID `db:"role_id" json:"role_id"`
}

// RolePermission grants a permission to a role.
type RolePermission struct {
	shared.Entity
	RoleID       uuid.UUID `db:"role_id" json:"role_id"`
	PermissionID uuid.UUID `db:"permission_id" json:"permission_id"`
}

// RoleInput carries role fields for create and update.
type RoleInput struct {
	Name        string
	Description *string
	IsActive    *bool
}

// PermissionInput carries permission fields for create and update.
type PermissionInput struct {
	Name        string
	Description *string
}

// PermissionNames flattens permissions into their names.
func PermissionNames(perms []Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}
