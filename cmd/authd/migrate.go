package main

import (
	"errors"

	"github.com/orbitadevhub/backDashboard/internal/config"
	"github.com/orbitadevhub/backDashboard/store/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres account schema",
		Long:  "migrate applies the embedded goose migrations to store.postgres_dsn. The mongo driver creates its indexes on startup and needs no migration.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StorePostgres {
				return errors.New("migrate requires store.driver postgres")
			}

			db, err := postgres.Open(cmd.Context(), cfg.Store.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info().Msg("postgres schema up to date")
			return nil
		},
	}
}
