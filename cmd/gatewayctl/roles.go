package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the permission catalog and the Admin and User roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *rbac.Service, _ *users.Repository) error {
			if err := svc.SeedDefaults(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "seeded default roles and permissions")
			return err
		})
	},
}

var grantRoleCmd = &cobra.Command{
	Use:   "grant-role <email> <role>",
	Short: "Assign a role to the account with the given email",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svc *rbac.Service, repo *users.Repository) error {
			userID, err := grantRole(ctx, repo, svc, args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", args[1], userID)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(seedCmd, grantRoleCmd)
}

type emailFinder interface {
	FindByEmail(ctx context.Context, email string) ([]users.User, error)
}

type roleGranter interface {
	RoleByName(ctx context.Context, name string) (rbac.Role, error)
	AssignRoleToUser(ctx context.Context, userID, roleID uuid.UUID) (rbac.RoleUser, error)
}

// grantRole assigns the named role to the account registered under email.
// A grant that already exists is reported as success.
func grantRole(ctx context.Context, finder emailFinder, roles roleGranter, email, roleName string) (uuid.UUID, error) {
	matches, err := finder.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		return uuid.Nil, err
	}
	if len(matches) == 0 {
		return uuid.Nil, &shared.NotFoundError{Resource: "user", ID: email}
	}
	role, err := roles.RoleByName(ctx, roleName)
	if err != nil {
		return uuid.Nil, err
	}
	userID := matches[0].ID
	if _, err := roles.AssignRoleToUser(ctx, userID, role.ID); err != nil && !errors.Is(err, shared.ErrDuplicate) {
		return uuid.Nil, err
	}
	return userID, nil
}

func withServices(ctx context.Context, fn func(ctx context.Context, svc *rbac.Service, repo *users.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	manager := db.NewManager(db.PoolDialer(cfg.PGDSN), db.ManagerConfig{
		MaxAttempts: cfg.DBMaxRetries,
		RetryDelay:  cfg.DBRetryDelay,
		Logger:      logger,
	})
	defer manager.Release()

	repo := users.NewRepository(manager)
	svc := rbac.NewService(rbac.NewStores(manager), repo, manager, logger)
	return fn(ctx, svc, repo)
}
