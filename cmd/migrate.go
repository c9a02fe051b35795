package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverpoint/identity-cli/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long:  "Applies all pending SQL migrations in lexicographic order. SQLite installs get the full schema in one statement batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.pool != nil {
			if err := db.Migrate(ctx, env.pool); err != nil {
				return eris.Wrap(err, "migrate")
			}
		} else {
			if err := db.MigrateSQLite(ctx, env.sqldb); err != nil {
				return eris.Wrap(err, "migrate")
			}
		}

		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
