package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/tweetsense/config"
	"github.com/mohammad-safakhou/tweetsense/internal/artifacts"
	"github.com/mohammad-safakhou/tweetsense/internal/classifier"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/mohammad-safakhou/tweetsense/internal/runtime"
	"github.com/mohammad-safakhou/tweetsense/internal/sentiment"
	"github.com/mohammad-safakhou/tweetsense/internal/store"
	"github.com/mohammad-safakhou/tweetsense/internal/vectorizer"
	"github.com/mohammad-safakhou/tweetsense/tools/tweet_search"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

// Run loads artifacts, builds the pipeline and serves HTTP until ctx is done.
func Run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled() {
		rdb = NewRedisClient(cfg.Storage.Redis)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Redis.Timeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	tokenizerPath, err := EnsureArtifacts(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	tok, err := vectorizer.LoadTokenizer(tokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	log.WithField("vocabulary", tok.VocabularySize()).Info("tokenizer loaded")

	searcher, err := tweet_search.NewSearcher(cfg.Search)
	if err != nil {
		return fmt.Errorf("search provider %q: %w", cfg.Search.Provider, err)
	}

	model := classifier.NewServingClient(cfg.Model, log)
	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := model.Status(statusCtx); err != nil {
		log.WithError(err).Warn("model server not ready; predictions will fail until it is")
	}
	cancel()

	svc := sentiment.NewService(searcher, tok, model,
		sentiment.WithMaxLen(cfg.Model.MaxLen),
		sentiment.WithDefaultLimit(cfg.Search.DefaultLimit),
		sentiment.WithLogger(log),
	)

	predict := &PredictHandler{Service: svc, ModelName: cfg.Model.DisplayName, Log: log}
	history := &HistoryHandler{}
	if cfg.Storage.Postgres.Enabled() {
		dbCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Postgres.Timeout)
		st, err := store.NewWithDSN(dbCtx, cfg.Storage.Postgres.DSN())
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer st.Close()
		predict.Runs = st
		history.Runs = st
	}

	secret, authOn := runtime.LoadJWTSecret(cfg)
	if !authOn {
		log.Warn("server.jwt_secret not set; /predict is unauthenticated")
	}

	e := New(Options{
		Predict:     predict,
		History:     history,
		JWTSecret:   secret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     cfg.Telemetry.MetricsEnabled,
		Log:         log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Address).Info("listening")
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// NewRedisClient builds a client from the storage.redis section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
}

// EnsureArtifacts downloads the tokenizer and model when missing and returns
// the tokenizer path. With rdb set, replicas share one download via a Redis lock.
func EnsureArtifacts(ctx context.Context, cfg *config.Config, rdb *redis.Client, log logging.Logger) (string, error) {
	var locker artifacts.Locker = artifacts.NewLocalLocker()
	if rdb != nil {
		locker = artifacts.NewRedisLocker(rdb)
	}
	fetcher := artifacts.NewFetcher(artifacts.Options{
		Locker:  locker,
		LockTTL: cfg.Artifacts.LockTTL,
		Retries: cfg.Artifacts.DownloadRetries,
		Timeout: cfg.Artifacts.DownloadTimeout,
		Log:     log,
	})

	tokenizerPath, err := fetcher.Ensure(ctx, artifacts.Artifact{
		Name:      "tokenizer",
		LocalPath: cfg.Tokenizer.LocalPath,
		URL:       cfg.Tokenizer.DownloadURL,
	})
	if err != nil {
		return "", fmt.Errorf("tokenizer artifact: %w", err)
	}
	if cfg.Model.LocalPath != "" {
		if _, err := fetcher.Ensure(ctx, artifacts.Artifact{
			Name:      "model",
			LocalPath: cfg.Model.LocalPath,
			URL:       cfg.Model.DownloadURL,
			Archive:   true,
		}); err != nil {
			return "", fmt.Errorf("model artifact: %w", err)
		}
	}
	return tokenizerPath, nil
}
