package shared

import (
	"regexp"
	"slices"
	"strings"
)

// User actions.
const (
	PermCreateUser       = "create:user"
	PermReadUser         = "read:user"
	PermUpdateUser       = "update:user"
	PermDeleteUser       = "delete:user"
	PermReadOwnProfile   = "read:own-profile"
	PermUpdateOwnProfile = "update:own-profile"
)

// Role actions.
const (
	PermCreateRole = "create:role"
	PermReadRole   = "read:role"
	PermUpdateRole = "update:role"
	PermDeleteRole = "delete:role"
	PermAssignRole = "assign:role"
	PermRemoveRole = "remove:role"
)

// Permission actions.
const (
	PermCreatePermission = "create:permission"
	PermReadPermission   = "read:permission"
	PermUpdatePermission = "update:permission"
	PermDeletePermission = "delete:permission"
	PermAssignPermission = "assign:permission"
	PermRemovePermission = "remove:permission"
)

var permissionPattern = regexp.MustCompile(`^[a-z]+:[a-z][a-z-]*$`)

// UserScopes lists the user related actions.
func UserScopes() []string {
	return []string{
		PermCreateUser,
		PermReadUser,
		PermUpdateUser,
		PermDeleteUser,
		PermReadOwnProfile,
		PermUpdateOwnProfile,
	}
}

// RoleScopes lists the role related actions.
func RoleScopes() []string {
	return []string{
		PermCreateRole,
		PermReadRole,
		PermUpdateRole,
		PermDeleteRole,
		PermAssignRole,
		PermRemoveRole,
	}
}

// PermissionScopes lists the permission related actions.
func PermissionScopes() []string {
	return []string{
		PermCreatePermission,
		PermReadPermission,
		PermUpdatePermission,
		PermDeletePermission,
		PermAssignPermission,
		PermRemovePermission,
	}
}

// CoreScopes lists every recognised action.
func CoreScopes() []string {
	scopes := make([]string, 0, 18)
	scopes = append(scopes, UserScopes()...)
	scopes = append(scopes, RoleScopes()...)
	scopes = append(scopes, PermissionScopes()...)
	return scopes
}

// IsKnownPermission reports whether name is an action:resource pair of the vocabulary.
func IsKnownPermission(name string) bool {
	if !permissionPattern.MatchString(name) {
		return false
	}
	return slices.Contains(CoreScopes(), name)
}

// DescribePermission renders the default description for a vocabulary action.
func DescribePermission(name string) string {
	return "Permission to " + strings.Replace(name, ":", " ", 1)
}
