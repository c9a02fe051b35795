package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coverpoint/identity-cli/internal/backfill"
)

var (
	backfillAgencyID int64
	backfillTable    string
	backfillAll      bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Link legacy module rows to resolved contacts",
}

var backfillRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run backfill for one legacy table or all of them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillAgencyID == 0 {
			return eris.New("backfill: --agency is required")
		}
		if !backfillAll && backfillTable == "" {
			return eris.New("backfill: pass --table or --all")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var report *backfill.Report
		if backfillAll {
			report, err = env.orchestrator.RunAll(ctx, backfillAgencyID)
		} else {
			report, err = env.orchestrator.Run(ctx, backfillAgencyID, backfillTable)
		}
		if err != nil {
			return err
		}

		printReport(report)
		return nil
	},
}

var backfillStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unlinked row counts per legacy table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillAgencyID == 0 {
			return eris.New("backfill: --agency is required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.sources.CountUnlinked(ctx, backfillAgencyID)
		if err != nil {
			return err
		}

		fmt.Printf("Unlinked legacy rows (agency %d):\n", backfillAgencyID)
		for _, table := range backfill.Tables {
			fmt.Printf("  %-22s %d\n", table, counts[table])
		}
		return nil
	},
}

func printReport(r *backfill.Report) {
	if r.Table != "" {
		fmt.Printf("Table:     %s\n", r.Table)
	}
	fmt.Printf("Processed: %d\n", r.Processed)
	fmt.Printf("Created:   %d\n", r.Created)
	fmt.Printf("Linked:    %d\n", r.Linked)
	fmt.Printf("Errors:    %d\n", r.Errors)
	for _, sample := range r.ErrorSamples {
		fmt.Printf("  - %s\n", sample)
	}
}

func init() {
	backfillRunCmd.Flags().Int64Var(&backfillAgencyID, "agency", 0, "agency id (required)")
	backfillRunCmd.Flags().StringVar(&backfillTable, "table", "", "legacy table to backfill")
	backfillRunCmd.Flags().BoolVar(&backfillAll, "all", false, "backfill every legacy table")
	backfillStatusCmd.Flags().Int64Var(&backfillAgencyID, "agency", 0, "agency id (required)")

	backfillCmd.AddCommand(backfillRunCmd)
	backfillCmd.AddCommand(backfillStatusCmd)
	rootCmd.AddCommand(backfillCmd)
}
