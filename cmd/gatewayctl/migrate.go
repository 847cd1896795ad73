package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(mg *db.Migrator) error {
			if err := mg.Up(); err != nil {
				return err
			}
			return printStatus(cmd, mg)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withMigrator(func(mg *db.Migrator) error {
			if err := mg.Down(steps); err != nil {
				return err
			}
			return printStatus(cmd, mg)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(mg *db.Migrator) error {
			return printStatus(cmd, mg)
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrator(fn func(mg *db.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mg, err := db.NewMigrator(cfg.PGDSN)
	if err != nil {
		return err
	}
	defer func() { _ = mg.Close() }()
	return fn(mg)
}

func printStatus(cmd *cobra.Command, mg *db.Migrator) error {
	status, err := mg.Status()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !status.Applied {
		_, err = fmt.Fprintln(out, "no migrations applied")
		return err
	}
	_, err = fmt.Fprintf(out, "version %d (dirty: %v)\n", status.Version, status.Dirty)
	return err
}
