package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/tubebite/internal/config"
	"github.com/forPelevin/tubebite/internal/pipeline"
	"github.com/forPelevin/tubebite/internal/ports/adapters/pgstore"
)

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete trashed history items past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, err := pipeline.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Purger.PurgeExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d item(s) older than %s\n", n, app.Purger.Retention())
			return err
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.History.Driver != config.HistoryPostgres {
				return errors.New("migrate: history driver is not postgres (set DATABASE_URL)")
			}
			ctx := cmd.Context()
			pool, err := pgstore.Open(ctx, cfg.History.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := pgstore.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	}
}
