package main

import (
	"context"

	srv "github.com/mohammad-safakhou/tweetsense/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func artifactsCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts",
		Short: "Download the model and tokenizer if missing, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var rdb *redis.Client
			if cfg.Storage.Redis.Enabled() {
				rdb = srv.NewRedisClient(cfg.Storage.Redis)
				defer rdb.Close()
			}
			path, err := srv.EnsureArtifacts(ctx, cfg, rdb, log)
			if err != nil {
				return err
			}
			log.WithField("tokenizer", path).WithField("model", cfg.Model.LocalPath).Info("artifacts ready")
			return nil
		},
	}
}
