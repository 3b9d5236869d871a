package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"treasurycontrol/internal/app"
	"treasurycontrol/internal/models"
)

func newStatusCommand(rootOpts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent cycles and the running totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), 30*time.Second)
			defer cancel()

			cycles, err := a.Stores.Cycles.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			m, err := a.Stores.Metrics.Get(ctx)
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), cycles, m)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of cycles to show")
	return cmd
}

func renderStatus(w io.Writer, cycles []models.Cycle, m *models.Metrics) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Status", "Executed", "Fees SOL", "Buy SOL", "Venue", "Tokens", "Error")
	for _, c := range cycles {
		executed := "-"
		if c.ExecutedAt != nil {
			executed = c.ExecutedAt.UTC().Format(time.RFC3339)
		}
		if err := table.Append(
			strconv.FormatUint(uint64(c.ID), 10),
			c.Status,
			executed,
			fmt.Sprintf("%.6f", c.FeeCollectionAmount),
			fmt.Sprintf("%.6f", c.BuyAmount),
			c.BuyVenue,
			fmt.Sprintf("%.2f", c.TokensBought),
			truncate(c.ErrorMessage, 40),
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if m == nil {
		return nil
	}
	_, err := fmt.Fprintf(w, "cycles=%d fees=%.6f SOL spent=%.6f SOL tokens=%.2f rewards=%.6f SOL last_price=%.10f\n",
		m.TotalCycles, m.TotalFeesCollected, m.TotalSolSpent, m.TotalTokensBought, m.TotalRewardsSent, m.LastPrice)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
