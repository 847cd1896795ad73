// Package rbactest provides an in-memory implementation of the RBAC stores
// for service and handler tests.
package rbactest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// Memory holds roles, permissions and grants in process. It also acts as the
// user directory and a pass-through transactor.
type Memory struct {
	mu        sync.Mutex
	users     map[uuid.UUID]struct{}
	roles     map[uuid.UUID]rbac.Role
	perms     map[uuid.UUID]rbac.Permission
	roleUsers []rbac.RoleUser
	rolePerms []rbac.RolePermission
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{
		users: make(map[uuid.UUID]struct{}),
		roles: make(map[uuid.UUID]rbac.Role),
		perms: make(map[uuid.UUID]rbac.Permission),
	}
}

// Stores exposes m through the rbac persistence ports.
func (m *Memory) Stores() rbac.Stores {
	return rbac.Stores{
		Roles:           roleStore{m},
		Permissions:     permissionStore{m},
		RoleUsers:       roleUserStore{m},
		RolePermissions: rolePermissionStore{m},
	}
}

// Service builds an rbac.Service over m.
func (m *Memory) Service() *rbac.Service {
	return rbac.NewService(m.Stores(), m, m, nil)
}

// AddUser registers a fresh user id with the directory and returns it.
func (m *Memory) AddUser() uuid.UUID {
	id := uuid.New()
	m.Track(id)
	return id
}

// Track registers an existing user id with the directory.
func (m *Memory) Track(id uuid.UUID) {
	m.mu.Lock()
	m.users[id] = struct{}{}
	m.mu.Unlock()
}

// RemoveUser drops a user id from the directory.
func (m *Memory) RemoveUser(id uuid.UUID) {
	m.mu.Lock()
	delete(m.users, id)
	m.mu.Unlock()
}

// Exists implements rbac.UserDirectory.
func (m *Memory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

// WithinTx runs fn directly.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// GrantCount returns the number of role grants held by userID.
func (m *Memory) GrantCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.roleUsers {
		if g.UserID == userID {
			n++
		}
	}
	return n
}

func stamp() shared.Entity {
	return shared.NewEntity(time.Now())
}

type roleStore struct{ m *Memory }

func (s roleStore) Create(_ context.Context, role rbac.Role) (rbac.Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.roles {
		if r.Name == role.Name {
			return rbac.Role{}, &shared.UniqueConstraintError{Field: "name"}
		}
	}
	role.Entity = stamp()
	s.m.roles[role.ID] = role
	return role, nil
}

func (s roleStore) FindByID(_ context.Context, id uuid.UUID) (rbac.Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[id]
	if !ok {
		return rbac.Role{}, &shared.NotFoundError{Resource: "role", ID: id.String()}
	}
	return role, nil
}

func (s roleStore) FindByName(_ context.Context, name string) ([]rbac.Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []rbac.Role
	for _, r := range s.m.roles {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s roleStore) List(_ context.Context) ([]rbac.Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]rbac.Role, 0, len(s.m.roles))
	for _, r := range s.m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s roleStore) Update(_ context.Context, id uuid.UUID, values db.Values) (rbac.Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[id]
	if !ok {
		return rbac.Role{}, &shared.NotFoundError{Resource: "role", ID: id.String()}
	}
	if v, ok := values["name"].(string); ok {
		for _, r := range s.m.roles {
			if r.ID != id && r.Name == v {
				return rbac.Role{}, &shared.UniqueConstraintError{Field: "name"}
			}
		}
		role.Name = v
	}
	if v, ok := values["description"].(string); ok {
		role.Description = &v
	}
	if v, ok := values["is_active"].(bool); ok {
		role.IsActive = v
	}
	role.UpdatedAt = time.Now().UTC()
	s.m.roles[id] = role
	return role, nil
}

func (s roleStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[id]; !ok {
		return false, &shared.NotFoundError{Resource: "role", ID: id.String()}
	}
	delete(s.m.roles, id)
	return true, nil
}

func (s roleStore) RolesForUser(_ context.Context, userID uuid.UUID) ([]rbac.Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []rbac.Role
	for _, g := range s.m.roleUsers {
		if g.UserID == userID {
			out = append(out, s.m.roles[g.RoleID])
		}
	}
	return out, nil
}

type permissionStore struct{ m *Memory }

func (s permissionStore) Create(_ context.Context, perm rbac.Permission) (rbac.Permission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, p := range s.m.perms {
		if p.Name == perm.Name {
			return rbac.Permission{}, &shared.UniqueConstraintError{Field: "name"}
		}
	}
	perm.Entity = stamp()
	s.m.perms[perm.ID] = perm
	return perm, nil
}

func (s permissionStore) FindByID(_ context.Context, id uuid.UUID) (rbac.Permission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	perm, ok := s.m.perms[id]
	if !ok {
		return rbac.Permission{}, &shared.NotFoundError{Resource: "permission", ID: id.String()}
	}
	return perm, nil
}

func (s permissionStore) FindByName(_ context.Context, name string) ([]rbac.Permission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []rbac.Permission
	for _, p := range s.m.perms {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s permissionStore) List(_ context.Context) ([]rbac.Permission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]rbac.Permission, 0, len(s.m.perms))
	for _, p := range s.m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s permissionStore) Update(_ context.Context, id uuid.UUID, values db.Values) (rbac.Permission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	perm, ok := s.m.perms[id]
	if !ok {
		return rbac.Permission{}, &shared.NotFoundError{Resource: "permission", ID: id.String()}
	}
	if v, ok := values["name"].(string); ok {
		perm.Name = v
	}
	if v, ok := values["description"].(string); ok {
		perm.Description = &v
	}
	perm.UpdatedAt = time.Now().UTC()
	s.m.perms[id] = perm
	return perm, nil
}

func (s permissionStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.perms[id]; !ok {
		return false, &shared.NotFoundError{Resource: "permission", ID: id.String()}
	}
	delete(s.m.perms, id)
	return true, nil
}

func (s permissionStore) PermissionsForRole(_ context.Context, roleID uuid.UUID) ([]rbac.Permission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []rbac.Permission
	for _, g := range s.m.rolePerms {
		if g.RoleID == roleID {
			out = append(out, s.m.perms[g.PermissionID])
		}
	}
	return out, nil
}

type roleUserStore struct{ m *Memory }

func (s roleUserStore) Create(_ context.Context, userID, roleID uuid.UUID) (rbac.RoleUser, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[roleID]; !ok {
		return rbac.RoleUser{}, &shared.ForeignKeyViolationError{Constraint: "role_user_role_id_fkey"}
	}
	for _, g := range s.m.roleUsers {
		if g.UserID == userID && g.RoleID == roleID {
			return rbac.RoleUser{}, &shared.UniqueConstraintError{Field: "user_id, role_id"}
		}
	}
	grant := rbac.RoleUser{Entity: stamp(), UserID: userID, RoleID: roleID}
	s.m.roleUsers = append(s.m.roleUsers, grant)
	return grant, nil
}

func (s roleUserStore) Delete(_ context.Context, userID, roleID uuid.UUID) (bool, error) {
	n := s.deleteWhere(func(g rbac.RoleUser) bool { return g.UserID == userID && g.RoleID == roleID })
	return n > 0, nil
}

func (s roleUserStore) DeleteByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	return s.deleteWhere(func(g rbac.RoleUser) bool { return g.UserID == userID }), nil
}

func (s roleUserStore) UserIDsForRole(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []uuid.UUID
	for _, g := range s.m.roleUsers {
		if g.RoleID == roleID {
			out = append(out, g.UserID)
		}
	}
	return out, nil
}

func (s roleUserStore) CountByRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	ids, err := s.UserIDsForRole(ctx, roleID)
	return len(ids), err
}

func (s roleUserStore) deleteWhere(match func(rbac.RoleUser) bool) int64 {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	kept := s.m.roleUsers[:0]
	var n int64
	for _, g := range s.m.roleUsers {
		if match(g) {
			n++
			continue
		}
		kept = append(kept, g)
	}
	s.m.roleUsers = kept
	return n
}

type rolePermissionStore struct{ m *Memory }

func (s rolePermissionStore) Create(_ context.Context, roleID, permissionID uuid.UUID) (rbac.RolePermission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[roleID]; !ok {
		return rbac.RolePermission{}, &shared.ForeignKeyViolationError{Constraint: "role_permissions_role_id_fkey"}
	}
	if _, ok := s.m.perms[permissionID]; !ok {
		return rbac.RolePermission{}, &shared.ForeignKeyViolationError{Constraint: "role_permissions_permission_id_fkey"}
	}
	for _, g := range s.m.rolePerms {
		if g.RoleID == roleID && g.PermissionID == permissionID {
			return rbac.RolePermission{}, &shared.UniqueConstraintError{Field: "role_id, permission_id"}
		}
	}
	grant := rbac.RolePermission{Entity: stamp(), RoleID: roleID, PermissionID: permissionID}
	s.m.rolePerms = append(s.m.rolePerms, grant)
	return grant, nil
}

func (s rolePermissionStore) Delete(_ context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	n := s.deleteWhere(func(g rbac.RolePermission) bool { return g.RoleID == roleID && g.PermissionID == permissionID })
	return n > 0, nil
}

func (s rolePermissionStore) DeleteByRole(_ context.Context, roleID uuid.UUID) (int64, error) {
	return s.deleteWhere(func(g rbac.RolePermission) bool { return g.RoleID == roleID }), nil
}

func (s rolePermissionStore) DeleteByPermission(_ context.Context, permissionID uuid.UUID) (int64, error) {
	return s.deleteWhere(func(g rbac.RolePermission) bool { return g.PermissionID == permissionID }), nil
}

func (s rolePermissionStore) deleteWhere(match func(rbac.RolePermission) bool) int64 {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	kept := s.m.rolePerms[:0]
	var n int64
	for _, g := range s.m.rolePerms {
		if match(g) {
			n++
			continue
		}
		kept = append(kept, g)
	}
	s.m.rolePerms = kept
	return n
}
