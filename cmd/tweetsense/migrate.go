package main

import (
	srv "github.com/mohammad-safakhou/tweetsense/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var migDirDefault = "file://migrations"
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run prediction log migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if migDir == "" {
				migDir = migDirDefault
			}
			var dsn string
			if cfg.Storage.Postgres.Enabled() {
				dsn = cfg.Storage.Postgres.DSN()
			}
			if err := srv.Migrate(migDir, dsn, direction, steps); err != nil {
				return err
			}
			log.WithField("direction", direction).Info("migrations applied")
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDirDefault, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
