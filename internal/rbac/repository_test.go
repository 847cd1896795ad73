package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db/dbtest"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
)

func TestPostgresEffectivePermissions(t *testing.T) {
	manager := dbtest.NewManager(t)
	ctx := context.Background()
	userRepo := users.NewRepository(manager)
	svc := rbac.NewService(rbac.NewStores(manager), userRepo, manager, nil)

	alice, err := userRepo.Create(ctx, users.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	viewer := createRole(t, svc, "Viewer", shared.PermReadUser)
	editor := createRole(t, svc, "Editor", shared.PermReadUser, shared.PermCreateUser)

	_, err = svc.AssignRoleToUser(ctx, alice.ID, viewer.ID)
	require.NoError(t, err)
	_, err = svc.AssignRoleToUser(ctx, alice.ID, editor.ID)
	require.NoError(t, err)

	_, err = svc.AssignRoleToUser(ctx, alice.ID, editor.ID)
	require.ErrorIs(t, err, shared.ErrDuplicate)

	perms, err := svc.EffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermCreateUser, shared.PermReadUser}, rbac.PermissionNames(perms))

	require.NoError(t, svc.RemoveRoleFromUser(ctx, alice.ID, editor.ID))
	perms, err = svc.EffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermReadUser}, rbac.PermissionNames(perms))

	err = manager.WithinTx(ctx, func(ctx context.Context) error {
		perms, err := svc.EffectivePermissions(ctx, alice.ID)
		if err != nil {
			return err
		}
		assert.Len(t, perms, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresDeletingUserDropsGrants(t *testing.T) {
	manager := dbtest.NewManager(t)
	ctx := context.Background()
	userRepo := users.NewRepository(manager)
	svc := rbac.NewService(rbac.NewStores(manager), userRepo, manager, nil)
	require.NoError(t, svc.SeedDefaults(ctx))

	bob, err := userRepo.Create(ctx, users.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	role, err := svc.RoleByName(ctx, rbac.RoleStandard)
	require.NoError(t, err)
	_, err = svc.AssignRoleToUser(ctx, bob.ID, role.ID)
	require.NoError(t, err)

	holders, err := svc.RoleUsers(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, holders, 1)

	removed, err := userRepo.Delete(ctx, bob.ID)
	require.NoError(t, err)
	require.True(t, removed)

	holders, err = svc.RoleUsers(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, holders)

	_, err = svc.EffectivePermissions(ctx, bob.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
