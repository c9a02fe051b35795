package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "identity-cli",
	Short: "Customer identity resolution for agency CRM data",
	Long:  "Resolves leads, cancellations, renewals, winbacks and sales to canonical contacts, links sales to pipeline households, and backfills legacy module tables.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
