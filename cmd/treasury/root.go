package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "treasury",
		Short:         "Treasury cycle orchestrator",
		Long:          "Collects creator fees, buys back the monitored asset, distributes fees, adds liquidity and pays trader rewards.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (optional; env overrides apply)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newOnceCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newRollbackCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}
