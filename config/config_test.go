package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"search": {"provider": "corpus", "corpus": {"path": "posts.jsonl"}}}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":8000" {
		t.Fatalf("expected default address, got %q", cfg.Server.Address)
	}
	if cfg.Search.DefaultLimit != 100 {
		t.Fatalf("expected default limit 100, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Model.MaxLen != 280 || cfg.Model.DisplayName != "BLSTM" {
		t.Fatalf("unexpected model defaults %+v", cfg.Model)
	}
	if cfg.Artifacts.LockTTL < cfg.Artifacts.DownloadTimeout {
		t.Fatalf("default lock_ttl %v shorter than download_timeout %v", cfg.Artifacts.LockTTL, cfg.Artifacts.DownloadTimeout)
	}
	if cfg.Model.Timeout != 30*time.Second {
		t.Fatalf("expected 30s model timeout, got %v", cfg.Model.Timeout)
	}
	if cfg.Storage.Redis.Enabled() || cfg.Storage.Postgres.Enabled() {
		t.Fatalf("storage should be disabled by default")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `{"search": {"provider": "corpus", "corpus": {"path": "posts.jsonl"}}}`)
	t.Setenv("TWEETSENSE_MODEL_DISPLAY_NAME", "LSTM")
	t.Setenv("TWEETSENSE_SEARCH_DEFAULT_LIMIT", "25")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.DisplayName != "LSTM" {
		t.Fatalf("expected env display name, got %q", cfg.Model.DisplayName)
	}
	if cfg.Search.DefaultLimit != 25 {
		t.Fatalf("expected env limit 25, got %d", cfg.Search.DefaultLimit)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `{"search": {"provider": "mastodon"}}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected provider validation error")
	}
}

func TestSearchValidate(t *testing.T) {
	ok := SearchConfig{Provider: "twitter", DefaultLimit: 100, Twitter: TwitterConfig{Accounts: "u:p"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	noAccounts := SearchConfig{Provider: "twitter", DefaultLimit: 100}
	if err := noAccounts.Validate(); err == nil {
		t.Fatalf("expected error without accounts")
	}
	noPath := SearchConfig{Provider: "corpus", DefaultLimit: 100}
	if err := noPath.Validate(); err == nil {
		t.Fatalf("expected error without corpus path")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "tweets"}
	if got := p.DSN(); got != "postgres://u:p@db:5432/tweets?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", got)
	}
	p.URL = "postgres://x"
	if got := p.DSN(); got != "postgres://x" {
		t.Fatalf("url should win, got %q", got)
	}
	if err := (PostgresConfig{Host: "db"}).Validate(); err == nil {
		t.Fatalf("expected dbname error")
	}
}

func TestArtifactsValidateLockTTL(t *testing.T) {
	short := ArtifactsConfig{LockTTL: 5 * time.Minute, DownloadTimeout: 10 * time.Minute}
	if err := short.Validate(); err == nil {
		t.Fatalf("expected error when lock_ttl is shorter than download_timeout")
	}
	ok := ArtifactsConfig{LockTTL: 15 * time.Minute, DownloadTimeout: 10 * time.Minute}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
