package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

const (
	schema             = "authentication"
	resourceRole       = "role"
	resourcePermission = "permission"
	resourceRoleUser   = "role assignment"
	resourceRolePerm   = "permission grant"

	roleUserTable       = `"authentication"."role_user"`
	rolePermissionTable = `"authentication"."role_permissions"`
)

// RoleRepository persists roles.
type RoleRepository struct {
	table *db.Table[Role]
}

// NewRoleRepository binds the roles table.
func NewRoleRepository(manager *db.Manager) *RoleRepository {
	return &RoleRepository{table: db.NewTable[Role](manager, schema, "roles", resourceRole,
		"id", "name", "description", "is_active", "created_at", "updated_at")}
}

// Create inserts a role.
func (r *RoleRepository) Create(ctx context.Context, role Role) (Role, error) {
	role.Entity.Ensure(time.Now())
	return r.table.Insert(ctx, db.Values{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
		"is_active":   role.IsActive,
		"created_at":  role.CreatedAt,
		"updated_at":  role.UpdatedAt,
	})
}

// FindByID fetches a role or returns a NotFoundError.
func (r *RoleRepository) FindByID(ctx context.Context, id uuid.UUID) (Role, error) {
	return r.table.FindByID(ctx, id)
}

// FindByName returns roles named name; empty when none match.
func (r *RoleRepository) FindByName(ctx context.Context, name string) ([]Role, error) {
	return r.table.FindByField(ctx, "name", name)
}

// List returns every role.
func (r *RoleRepository) List(ctx context.Context) ([]Role, error) {
	return r.table.FindAll(ctx)
}

// Update applies a partial update.
func (r *RoleRepository) Update(ctx context.Context, id uuid.UUID, values db.Values) (Role, error) {
	return r.table.Update(ctx, id, values)
}

// Delete removes a role.
func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.table.DeleteByID(ctx, id)
}

// RolesForUser returns the roles granted to userID ordered by name.
func (r *RoleRepository) RolesForUser(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s r
JOIN %s ru ON ru.role_id = r.id
WHERE ru.user_id = $1
ORDER BY r.name`, r.table.Columns("r"), r.table.Name(), roleUserTable)
	return r.table.Select(ctx, "list roles for user", query, userID)
}

// PermissionRepository persists permissions.
type PermissionRepository struct {
	table *db.Table[Permission]
}

// NewPermissionRepository binds the permissions table.
func NewPermissionRepository(manager *db.Manager) *PermissionRepository {
	return &PermissionRepository{table: db.NewTable[Permission](manager, schema, "permissions", resourcePermission,
		"id", "name", "description", "created_at", "updated_at")}
}

// Create inserts a permission.
func (r *PermissionRepository) Create(ctx context.Context, perm Permission) (Permission, error) {
	perm.Entity.Ensure(time.Now())
	return r.table.Insert(ctx, db.Values{
		"id":          perm.ID,
		"name":        perm.Name,
		"description": perm.Description,
		"created_at":  perm.CreatedAt,
		"updated_at":  perm.UpdatedAt,
	})
}

// FindByID fetches a permission or returns a NotFoundError.
func (r *PermissionRepository) FindByID(ctx context.Context, id uuid.UUID) (Permission, error) {
	return r.table.FindByID(ctx, id)
}

// FindByName returns permissions named name; empty when none match.
func (r *PermissionRepository) FindByName(ctx context.Context, name string) ([]Permission, error) {
	return r.table.FindByField(ctx, "name", name)
}

// List returns every permission.
func (r *PermissionRepository) List(ctx context.Context) ([]Permission, error) {
	return r.table.FindAll(ctx)
}

// Update applies a partial update.
func (r *PermissionRepository) Update(ctx context.Context, id uuid.UUID, values db.Values) (Permission, error) {
	return r.table.Update(ctx, id, values)
}

// Delete removes a permission.
func (r *PermissionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.table.DeleteByID(ctx, id)
}

// PermissionsForRole returns the permissions granted to roleID ordered by name.
func (r *PermissionRepository) PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]Permission, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s p
JOIN %s rp ON rp.permission_id = p.id
WHERE rp.role_id = $1
ORDER BY p.name`, r.table.Columns("p"), r.table.Name(), rolePermissionTable)
	return r.table.Select(ctx, "list permissions for role", query, roleID)
}

// RoleUserRepository persists role grants to users.
type RoleUserRepository struct {
	table *db.Table[RoleUser]
}

// NewRoleUserRepository binds the role_user table.
func NewRoleUserRepository(manager *db.Manager) *RoleUserRepository {
	return &RoleUserRepository{table: db.NewTable[RoleUser](manager, schema, "role_user", resourceRoleUser,
		"id", "user_id", "role_id", "created_at", "updated_at")}
}

// Create inserts a grant. A repeated pair fails with a UniqueConstraintError.
func (r *RoleUserRepository) Create(ctx context.Context, userID, roleID uuid.UUID) (RoleUser, error) {
	e := shared.NewEntity(time.Now())
	return r.table.Insert(ctx, db.Values{
		"id":         e.ID,
		"user_id":    userID,
		"role_id":    roleID,
		"created_at": e.CreatedAt,
		"updated_at": e.UpdatedAt,
	})
}

// Delete removes the grant of roleID to userID and reports whether it existed.
func (r *RoleUserRepository) Delete(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	n, err := r.table.DeleteWhere(ctx, db.Values{"user_id": userID, "role_id": roleID})
	return n > 0, err
}

// DeleteByUser removes every grant held by userID.
func (r *RoleUserRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.table.DeleteWhere(ctx, db.Values{"user_id": userID})
}

// UserIDsForRole lists the users holding roleID.
func (r *RoleUserRepository) UserIDsForRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.table.FindByField(ctx, "role_id", roleID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.UserID
	}
	return ids, nil
}

// CountByRole counts the users holding roleID.
func (r *RoleUserRepository) CountByRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	return r.table.Count(ctx, db.Values{"role_id": roleID})
}

// RolePermissionRepository persists permission grants to roles.
type RolePermissionRepository struct {
	table *db.Table[RolePermission]
}

// NewRolePermissionRepository binds the role_permissions table.
func NewRolePermissionRepository(manager *db.Manager) *RolePermissionRepository {
	return &RolePermissionRepository{table: db.NewTable[RolePermission](manager, schema, "role_permissions", resourceRolePerm,
		"id", "role_id", "permission_id", "created_at", "updated_at")}
}

// Create inserts a grant. A repeated pair fails with a UniqueConstraintError.
func (r *RolePermissionRepository) Create(ctx context.Context, roleID, permissionID uuid.UUID) (RolePermission, error) {
	e := shared.NewEntity(time.Now())
	return r.table.Insert(ctx, db.Values{
		"id":            e.ID,
		"role_id":       roleID,
		"permission_id": permissionID,
		"created_at":    e.CreatedAt,
		"updated_at":    e.UpdatedAt,
	})
}

// Delete removes the grant of permissionID to roleID and reports whether it existed.
func (r *RolePermissionRepository) Delete(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	n, err := r.table.DeleteWhere(ctx, db.Values{"role_id": roleID, "permission_id": permissionID})
	return n > 0, err
}

// DeleteByRole removes every grant of roleID.
func (r *RolePermissionRepository) DeleteByRole(ctx context.Context, roleID uuid.UUID) (int64, error) {
	return r.table.DeleteWhere(ctx, db.Values{"role_id": roleID})
}

// DeleteByPermission removes every grant of permissionID.
func (r *RolePermissionRepository) DeleteByPermission(ctx context.Context, permissionID uuid.UUID) (int64, error) {
	return r.table.DeleteWhere(ctx, db.Values{"permission_id": permissionID})
}
