package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/verdia/trellis/internal/config"
	"github.com/verdia/trellis/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Connects to the configured database and creates or updates all Trellis tables. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trellis.yaml", "path to Trellis config file")
	return cmd
}

func runMigrate(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.Connect(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return err
	}

	if err := store.AutoMigrate(db); err != nil {
		return err
	}

	fmt.Fprintf(out, "Schema migrated (%s)\n", cfg.Database.Driver)
	return nil
}
