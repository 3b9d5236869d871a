package main

import (
	"github.com/spf13/cobra"

	"treasurycontrol/internal/app"
	"treasurycontrol/pkg/config"
)

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := config.ExecuteMigrations(a.DB, a.Config.Database.MigrationsDir); err != nil {
				return err
			}
			a.Log("migrate").Info("migrations applied")
			return nil
		},
	}
}

func newRollbackCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := config.RollbackMigration(a.DB, a.Config.Database.MigrationsDir); err != nil {
				return err
			}
			a.Log("migrate").Info("rolled back one migration")
			return nil
		},
	}
}
