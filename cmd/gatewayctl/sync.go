package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
	"github.com/odyssey-erp/odyssey-gateway/jobs"
)

var syncAsync bool

var syncPermissionsCmd = &cobra.Command{
	Use:   "sync-permissions",
	Short: "Create any catalog permissions missing from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncAsync {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr))
			defer client.Close()
			return enqueueSync(cmd.Context(), client, cmd.OutOrStdout())
		}
		return withServices(cmd.Context(), func(ctx context.Context, svc *rbac.Service, _ *users.Repository) error {
			created, err := svc.SyncPermissionCatalog(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %d permissions\n", created)
			return err
		})
	},
}

func init() {
	syncPermissionsCmd.Flags().BoolVar(&syncAsync, "async", false, "hand the sync to the worker queue instead of running it here")
	rootCmd.AddCommand(syncPermissionsCmd)
}

type syncEnqueuer interface {
	EnqueueSyncPermissions(ctx context.Context, reason string) (*asynq.TaskInfo, error)
}

func enqueueSync(ctx context.Context, queue syncEnqueuer, out io.Writer) error {
	info, err := queue.EnqueueSyncPermissions(ctx, "gatewayctl")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "enqueued %s on %s\n", info.ID, info.Queue)
	return err
}
