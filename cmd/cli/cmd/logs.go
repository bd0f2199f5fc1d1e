// Package cmd - pricing log and run commands
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

var (
	logsFormat string
	logsLimit  int
	logsOffset int
	runsFormat string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List settings change log entries, newest first",
	RunE:  runLogs,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded pricing runs",
}

var runsStepsCmd = &cobra.Command{
	Use:   "steps <run-id>",
	Short: "Print the frozen calculation steps of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunSteps,
}

func init() {
	rootCmd.AddCommand(logsCmd, runsCmd)
	runsCmd.AddCommand(runsStepsCmd)

	addTenantFlags(logsCmd)
	logsCmd.Flags().IntVar(&logsLimit, "limit", db.DefaultPageLimit, "page size")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "page offset")
	logsCmd.Flags().StringVarP(&logsFormat, "format", "f", "cli", formatUsage)

	addTenantFlags(runsStepsCmd)
	runsStepsCmd.Flags().StringVarP(&runsFormat, "format", "f", "cli", formatUsage)
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsLimit < 0 || logsOffset < 0 {
		return errors.Validation("--limit and --offset must not be negative")
	}
	f, err := formats.Get(logsFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := actingPrincipal()
	if err != nil {
		return err
	}
	eng, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := eng.GetPricingLogs(ctx, p, tenantID, db.Page{Limit: logsLimit, Offset: logsOffset})
	if err != nil {
		return err
	}
	return f.LogEntries(cmd.OutOrStdout(), entries)
}

func runRunSteps(cmd *cobra.Command, args []string) error {
	f, err := formats.Get(runsFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := actingPrincipal()
	if err != nil {
		return err
	}
	eng, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := eng.GetPricingLogSteps(ctx, p, tenantID, args[0])
	if err != nil {
		return err
	}
	return f.Run(cmd.OutOrStdout(), run)
}
