package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	salelinkAgencyID int64
	salelinkSaleID   int64
)

var salelinkCmd = &cobra.Command{
	Use:   "salelink",
	Short: "Link unmatched sales to pipeline households",
	Long:  "Scans an agency's unlinked sales and attaches each to its matching open household, or flags the household for review. Pass --sale to process a single sale.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if salelinkAgencyID == 0 && salelinkSaleID == 0 {
			return eris.New("salelink: --agency or --sale is required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if salelinkSaleID != 0 {
			result, err := env.linker.ProcessSale(ctx, salelinkSaleID)
			if err != nil {
				return err
			}
			switch {
			case result == nil || result.Link == nil:
				fmt.Printf("Sale %d: no confident match, household flagged\n", salelinkSaleID)
			case result.AlreadyLinked:
				fmt.Printf("Sale %d: already linked to household %d\n", salelinkSaleID, result.Link.HouseholdID)
			default:
				fmt.Printf("Sale %d: linked to household %d (%s)\n",
					salelinkSaleID, result.Link.HouseholdID, result.Link.Confidence)
			}
			return nil
		}

		report, err := env.linker.BackfillSales(ctx, salelinkAgencyID)
		if err != nil {
			return err
		}
		fmt.Printf("Processed: %d\n", report.Processed)
		fmt.Printf("Linked:    %d\n", report.Linked)
		fmt.Printf("Unmatched: %d\n", report.Unmatched)
		fmt.Printf("Skipped:   %d\n", report.Skipped)
		fmt.Printf("Errors:    %d\n", report.Errors)
		return nil
	},
}

func init() {
	salelinkCmd.Flags().Int64Var(&salelinkAgencyID, "agency", 0, "agency id")
	salelinkCmd.Flags().Int64Var(&salelinkSaleID, "sale", 0, "process a single sale id")
	rootCmd.AddCommand(salelinkCmd)
}
