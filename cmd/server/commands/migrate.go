package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/garyjia/office-requisition/migrations"
	"github.com/garyjia/office-requisition/pkg/database"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.New(database.Config{Path: cfg.Database.Path}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if cfg.Database.MigrationsDir != "" {
		err = migrator.RunMigrationsDir(cfg.Database.MigrationsDir)
	} else {
		err = migrator.RunMigrations(migrations.FS)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := migrator.AppliedVersions()
	if err != nil {
		return err
	}
	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "database: %s\n", cfg.Database.Path)
	for _, v := range versions {
		fmt.Fprintf(out, "applied: %03d\n", v)
	}
	return nil
}
