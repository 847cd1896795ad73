package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// RoleStore persists roles.
type RoleStore interface {
	Create(ctx context.Context, role Role) (Role, error)
	FindByID(ctx context.Context, id uuid.UUID) (Role, error)
	FindByName(ctx context.Context, name string) ([]Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, id uuid.UUID, values db.Values) (Role, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]Role, error)
}

// PermissionStore persists permissions.
type PermissionStore interface {
	Create(ctx context.Context, perm Permission) (Permission, error)
	FindByID(ctx context.Context, id uuid.UUID) (Permission, error)
	FindByName(ctx context.Context, name string) ([]Permission, error)
	List(ctx context.Context) ([]Permission, error)
	Update(ctx context.Context, id uuid.UUID, values db.Values) (Permission, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]Permission, error)
}

// RoleUserStore persists role grants.
type RoleUserStore interface {
	Create(ctx context.Context, userID, roleID uuid.UUID) (RoleUser, error)
	Delete(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	UserIDsForRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
	CountByRole(ctx context.Context, roleID uuid.UUID) (int, error)
}

// RolePermissionStore persists permission grants.
type RolePermissionStore interface {
	Create(ctx context.Context, roleID, permissionID uuid.UUID) (RolePermission, error)
	Delete(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error)
	DeleteByRole(ctx context.Context, roleID uuid.UUID) (int64, error)
	DeleteByPermission(ctx context.Context, permissionID uuid.UUID) (int64, error)
}

// UserDirectory answers whether a user account exists.
type UserDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Transactor runs fn inside a single storage transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores groups the RBAC persistence ports.
type Stores struct {
	Roles           RoleStore
	Permissions     PermissionStore
	RoleUsers       RoleUserStore
	RolePermissions RolePermissionStore
}

// NewStores binds the PostgreSQL repositories to manager.
func NewStores(manager *db.Manager) Stores {
	return Stores{
		Roles:           NewRoleRepository(manager),
		Permissions:     NewPermissionRepository(manager),
		RoleUsers:       NewRoleUserRepository(manager),
		RolePermissions: NewRolePermissionRepository(manager),
	}
}

// Service orchestrates RBAC operations.
type Service struct {
	stores Stores
	users  UserDirectory
	tx     Transactor
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(stores Stores, users UserDirectory, tx Transactor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stores: stores, users: users, tx: tx, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.stores.Roles.List(ctx)
}

// GetRole fetches a role by ID with its permissions loaded.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	role, err := s.stores.Roles.FindByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	perms, err := s.stores.Permissions.PermissionsForRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// RoleByName fetches a role by its unique name.
func (s *Service) RoleByName(ctx context.Context, name string) (Role, error) {
	roles, err := s.stores.Roles.FindByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return Role{}, err
	}
	if len(roles) == 0 {
		return Role{}, &shared.NotFoundError{Resource: resourceRole, ID: name}
	}
	return roles[0], nil
}

// CreateRole inserts a new role, rejecting duplicate names.
func (s *Service) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateRoleName(input.Name); err != nil {
		return Role{}, err
	}
	if err := s.ensureRoleNameFree(ctx, input.Name, uuid.Nil); err != nil {
		return Role{}, err
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	role, err := s.stores.Roles.Create(ctx, Role{Name: input.Name, Description: input.Description, IsActive: active})
	if err != nil {
		return Role{}, asDuplicate(err, resourceRole, "name")
	}
	s.logger.Info("role created", slog.String("role_id", role.ID.String()), slog.String("name", role.Name))
	return role, nil
}

// UpdateRole applies the non-nil fields of input to the role.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, input UpdateRoleRequest) (Role, error) {
	if _, err := s.stores.Roles.FindByID(ctx, id); err != nil {
		return Role{}, err
	}
	values := db.Values{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := validateRoleName(name); err != nil {
			return Role{}, err
		}
		if err := s.ensureRoleNameFree(ctx, name, id); err != nil {
			return Role{}, err
		}
		values["name"] = name
	}
	if input.Description != nil {
		values["description"] = *input.Description
	}
	if input.IsActive != nil {
		values["is_active"] = *input.IsActive
	}
	role, err := s.stores.Roles.Update(ctx, id, values)
	if err != nil {
		return Role{}, asDuplicate(err, resourceRole, "name")
	}
	return role, nil
}

// DeleteRole removes a role. A role still held by users is rejected; its
// permission grants are removed in the same transaction.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	if _, err := s.stores.Roles.FindByID(ctx, id); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		holders, err := s.stores.RoleUsers.CountByRole(ctx, id)
		if err != nil {
			return err
		}
		if holders > 0 {
			return &shared.ConflictError{Resource: resourceRole, Reason: "role is still assigned to users"}
		}
		if _, err := s.stores.RolePermissions.DeleteByRole(ctx, id); err != nil {
			return err
		}
		_, err = s.stores.Roles.Delete(ctx, id)
		return err
	})
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.stores.Permissions.List(ctx)
}

// GetPermission fetches a permission by ID.
func (s *Service) GetPermission(ctx context.Context, id uuid.UUID) (Permission, error) {
	return s.stores.Permissions.FindByID(ctx, id)
}

// CreatePermission inserts a vocabulary permission, rejecting duplicates.
func (s *Service) CreatePermission(ctx context.Context, input PermissionInput) (Permission, error) {
	input.Name = strings.TrimSpace(input.Name)
	if !shared.IsKnownPermission(input.Name) {
		return Permission{}, shared.NewValidationError("name", "must be a recognised action:resource permission")
	}
	if err := s.ensurePermissionNameFree(ctx, input.Name, uuid.Nil); err != nil {
		return Permission{}, err
	}
	perm, err := s.stores.Permissions.Create(ctx, Permission{Name: input.Name, Description: input.Description})
	if err != nil {
		return Permission{}, asDuplicate(err, resourcePermission, "name")
	}
	return perm, nil
}

// UpdatePermission applies the non-nil fields of input to the permission.
func (s *Service) UpdatePermission(ctx context.Context, id uuid.UUID, input UpdatePermissionRequest) (Permission, error) {
	if _, err := s.stores.Permissions.FindByID(ctx, id); err != nil {
		return Permission{}, err
	}
	values := db.Values{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if !shared.IsKnownPermission(name) {
			return Permission{}, shared.NewValidationError("name", "must be a recognised action:resource permission")
		}
		if err := s.ensurePermissionNameFree(ctx, name, id); err != nil {
			return Permission{}, err
		}
		values["name"] = name
	}
	if input.Description != nil {
		values["description"] = *input.Description
	}
	perm, err := s.stores.Permissions.Update(ctx, id, values)
	if err != nil {
		return Permission{}, asDuplicate(err, resourcePermission, "name")
	}
	return perm, nil
}

// DeletePermission removes a permission together with its role grants.
func (s *Service) DeletePermission(ctx context.Context, id uuid.UUID) error {
	if _, err := s.stores.Permissions.FindByID(ctx, id); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.stores.RolePermissions.DeleteByPermission(ctx, id); err != nil {
			return err
		}
		_, err := s.stores.Permissions.Delete(ctx, id)
		return err
	})
}

// AssignRoleToUser grants roleID to userID. Re-assigning an existing grant
// fails with a DuplicateError.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, roleID uuid.UUID) (RoleUser, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return RoleUser{}, err
	}
	role, err := s.stores.Roles.FindByID(ctx, roleID)
	if err != nil {
		return RoleUser{}, err
	}
	if !role.IsActive {
		return RoleUser{}, &shared.ConflictError{Resource: resourceRole, Reason: "inactive roles cannot be assigned"}
	}
	grant, err := s.stores.RoleUsers.Create(ctx, userID, roleID)
	if err != nil {
		return RoleUser{}, asDuplicate(err, resourceRoleUser, "")
	}
	s.logger.Info("role assigned", slog.String("user_id", userID.String()), slog.String("role_id", roleID.String()))
	return grant, nil
}

// RemoveRoleFromUser revokes roleID from userID.
func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, roleID uuid.UUID) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.stores.Roles.FindByID(ctx, roleID); err != nil {
		return err
	}
	removed, err := s.stores.RoleUsers.Delete(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !removed {
		return &shared.NotFoundError{Resource: resourceRoleUser}
	}
	s.logger.Info("role removed", slog.String("user_id", userID.String()), slog.String("role_id", roleID.String()))
	return nil
}

// AssignPermissionToRole grants permissionID to roleID.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleID, permissionID uuid.UUID) (RolePermission, error) {
	if _, err := s.stores.Roles.FindByID(ctx, roleID); err != nil {
		return RolePermission{}, err
	}
	if _, err := s.stores.Permissions.FindByID(ctx, permissionID); err != nil {
		return RolePermission{}, err
	}
	grant, err := s.stores.RolePermissions.Create(ctx, roleID, permissionID)
	if err != nil {
		return RolePermission{}, asDuplicate(err, resourceRolePerm, "")
	}
	return grant, nil
}

// RemovePermissionFromRole revokes permissionID from roleID.
func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if _, err := s.stores.Roles.FindByID(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.stores.Permissions.FindByID(ctx, permissionID); err != nil {
		return err
	}
	removed, err := s.stores.RolePermissions.Delete(ctx, roleID, permissionID)
	if err != nil {
		return err
	}
	if !removed {
		return &shared.NotFoundError{Resource: resourceRolePerm}
	}
	return nil
}

// UserRoles lists the roles granted to userID.
func (s *Service) UserRoles(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.stores.Roles.RolesForUser(ctx, userID)
}

// RoleUsers lists the ids of users holding roleID.
func (s *Service) RoleUsers(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.stores.Roles.FindByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.stores.RoleUsers.UserIDsForRole(ctx, roleID)
}

// RolePermissions lists the permissions granted to roleID.
func (s *Service) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]Permission, error) {
	if _, err := s.stores.Roles.FindByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.stores.Permissions.PermissionsForRole(ctx, roleID)
}

// RevokeAllRoles removes every role grant of userID.
func (s *Service) RevokeAllRoles(ctx context.Context, userID uuid.UUID) error {
	_, err := s.stores.RoleUsers.DeleteByUser(ctx, userID)
	return err
}

// EffectivePermissions returns the de-duplicated union of the permissions of
// every role held by userID, sorted by name. It always reads storage.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]Permission, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	roles, err := s.stores.Roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	perRole := make([][]Permission, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	if db.InTx(ctx) {
		g.SetLimit(1)
	}
	for i, role := range roles {
		g.Go(func() error {
			perms, err := s.stores.Permissions.PermissionsForRole(gctx, role.ID)
			if err != nil {
				return err
			}
			perRole[i] = perms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{})
	effective := make([]Permission, 0)
	for _, perms := range perRole {
		for _, p := range perms {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			effective = append(effective, p)
		}
	}
	sort.Slice(effective, func(i, j int) bool { return effective[i].Name < effective[j].Name })
	return effective, nil
}

// SyncPermissionCatalog creates every vocabulary permission that is missing
// and returns how many were created.
func (s *Service) SyncPermissionCatalog(ctx context.Context) (int, error) {
	created := 0
	for _, name := range shared.CoreScopes() {
		existing, err := s.stores.Permissions.FindByName(ctx, name)
		if err != nil {
			return created, err
		}
		if len(existing) > 0 {
			continue
		}
		desc := shared.DescribePermission(name)
		if _, err := s.stores.Permissions.Create(ctx, Permission{Name: name, Description: &desc}); err != nil {
			if errors.Is(err, shared.ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}
	if created > 0 {
		s.logger.Info("permission catalog synced", slog.Int("created", created))
	}
	return created, nil
}

// EnsureRole creates the named role when missing and grants it every listed
// permission it lacks. Permissions must already exist.
func (s *Service) EnsureRole(ctx context.Context, name, description string, permissions []string) (Role, error) {
	role, err := s.RoleByName(ctx, name)
	if errors.Is(err, shared.ErrNotFound) {
		role, err = s.CreateRole(ctx, RoleInput{Name: name, Description: &description})
	}
	if err != nil {
		return Role{}, err
	}
	granted, err := s.stores.Permissions.PermissionsForRole(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	have := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		have[p.Name] = struct{}{}
	}
	for _, name := range permissions {
		if _, ok := have[name]; ok {
			continue
		}
		perms, err := s.stores.Permissions.FindByName(ctx, name)
		if err != nil {
			return Role{}, err
		}
		if len(perms) == 0 {
			return Role{}, &shared.NotFoundError{Resource: resourcePermission, ID: name}
		}
		if _, err := s.stores.RolePermissions.Create(ctx, role.ID, perms[0].ID); err != nil && !errors.Is(err, shared.ErrDuplicate) {
			return Role{}, err
		}
	}
	return role, nil
}

// SeedDefaults installs the permission catalog and the Admin and User roles.
func (s *Service) SeedDefaults(ctx context.Context) error {
	if _, err := s.SyncPermissionCatalog(ctx); err != nil {
		return err
	}
	if _, err := s.EnsureRole(ctx, RoleAdmin, "Full administrative access", shared.CoreScopes()); err != nil {
		return err
	}
	_, err := s.EnsureRole(ctx, RoleStandard, "Standard account access", []string{shared.PermReadOwnProfile, shared.PermUpdateOwnProfile})
	return err
}

// Default role names installed by SeedDefaults.
const (
	RoleAdmin    = "Admin"
	RoleStandard = "User"
)

func (s *Service) ensureUser(ctx context.Context, userID uuid.UUID) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.NotFoundError{Resource: "user", ID: userID.String()}
	}
	return nil
}

func (s *Service) ensureRoleNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.stores.Roles.FindByName(ctx, name)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.ID != self {
			return &shared.DuplicateError{Resource: resourceRole, Field: "name"}
		}
	}
	return nil
}

func (s *Service) ensurePermissionNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.stores.Permissions.FindByName(ctx, name)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.ID != self {
			return &shared.DuplicateError{Resource: resourcePermission, Field: "name"}
		}
	}
	return nil
}

func validateRoleName(name string) error {
	if n := len([]rune(name)); n < 3 || n > 50 {
		return shared.NewValidationError("name", "must be between 3 and 50 characters")
	}
	return nil
}

// asDuplicate turns a storage unique violation into the business-level
// DuplicateError. Other errors pass through.
func asDuplicate(err error, resource, field string) error {
	var unique *shared.UniqueConstraintError
	if errors.As(err, &unique) {
		if field == "" {
			field = unique.Field
		}
		return &shared.DuplicateError{Resource: resource, Field: field}
	}
	return err
}
