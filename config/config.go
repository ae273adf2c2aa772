package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sentiment service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	Model     ModelConfig     `mapstructure:"model"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or text
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"` // empty disables auth
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SearchConfig selects and configures the post source.
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // twitter or corpus
	DefaultLimit int           `mapstructure:"default_limit"`
	Twitter      TwitterConfig `mapstructure:"twitter"`
	Corpus       CorpusConfig  `mapstructure:"corpus"`
}

// TwitterConfig configures the X/Twitter scraping client.
type TwitterConfig struct {
	// Accounts uses the "user:pass[:auth_token:ct0[:totp]]" comma-separated format.
	Accounts         string `mapstructure:"accounts"`
	Proxy            string `mapstructure:"proxy"`
	OpenAccountCount int    `mapstructure:"open_account_count"`
	SessionDir       string `mapstructure:"session_dir"`
}

// CorpusConfig configures the local JSONL post corpus.
type CorpusConfig struct {
	Path     string `mapstructure:"path"`
	PageSize int    `mapstructure:"page_size"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "twitter":
		if strings.TrimSpace(s.Twitter.Accounts) == "" && s.Twitter.OpenAccountCount <= 0 {
			return fmt.Errorf("search.twitter.accounts or search.twitter.open_account_count required")
		}
	case "corpus":
		if strings.TrimSpace(s.Corpus.Path) == "" {
			return fmt.Errorf("search.corpus.path required for corpus provider")
		}
	default:
		return fmt.Errorf("search.provider must be twitter or corpus, got %q", s.Provider)
	}
	if s.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be > 0")
	}
	return nil
}

// ModelConfig describes the served classifier and its on-disk artifact.
type ModelConfig struct {
	DisplayName     string        `mapstructure:"display_name"`
	Endpoint        string        `mapstructure:"endpoint"`     // TensorFlow Serving REST base URL
	ServingName     string        `mapstructure:"serving_name"` // model name under /v1/models
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxLen          int           `mapstructure:"max_len"`
	LocalPath       string        `mapstructure:"local_path"`
	DownloadURL     string        `mapstructure:"download_url"` // tar.gz of the SavedModel directory
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerDelay    time.Duration `mapstructure:"breaker_delay"`
}

func (m ModelConfig) Validate() error {
	if strings.TrimSpace(m.Endpoint) == "" {
		return fmt.Errorf("model.endpoint required")
	}
	if strings.TrimSpace(m.ServingName) == "" {
		return fmt.Errorf("model.serving_name required")
	}
	if m.MaxLen <= 0 {
		return fmt.Errorf("model.max_len must be > 0")
	}
	return nil
}

// TokenizerConfig points at the Keras tokenizer JSON artifact.
type TokenizerConfig struct {
	LocalPath   string `mapstructure:"local_path"`
	DownloadURL string `mapstructure:"download_url"`
}

func (t TokenizerConfig) Validate() error {
	if strings.TrimSpace(t.LocalPath) == "" {
		return fmt.Errorf("tokenizer.local_path required")
	}
	return nil
}

// ArtifactsConfig tunes the download-if-missing step at startup.
type ArtifactsConfig struct {
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	DownloadRetries int           `mapstructure:"download_retries"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// Validate keeps the download lock alive for the whole download window.
func (a ArtifactsConfig) Validate() error {
	if a.LockTTL > 0 && a.DownloadTimeout > 0 && a.LockTTL < a.DownloadTimeout {
		return fmt.Errorf("artifacts.lock_ttl (%s) must be >= artifacts.download_timeout (%s)", a.LockTTL, a.DownloadTimeout)
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether Redis is configured at all.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the prediction log database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a lib/pq connection URL, preferring the explicit url.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("search.provider", "twitter")
	v.SetDefault("search.default_limit", 100)
	v.SetDefault("search.twitter.accounts", "")
	v.SetDefault("search.twitter.proxy", "")
	v.SetDefault("search.twitter.open_account_count", 0)
	v.SetDefault("search.twitter.session_dir", "")
	v.SetDefault("search.corpus.path", "")
	v.SetDefault("search.corpus.page_size", 50)
	v.SetDefault("model.display_name", "BLSTM")
	v.SetDefault("model.endpoint", "http://localhost:8501")
	v.SetDefault("model.serving_name", "blstm_model")
	v.SetDefault("model.timeout", 30*time.Second)
	v.SetDefault("model.max_len", 280)
	v.SetDefault("model.local_path", "./model/saved_model/blstm_model")
	v.SetDefault("model.download_url", "")
	v.SetDefault("model.breaker_failures", 5)
	v.SetDefault("model.breaker_delay", 30*time.Second)
	v.SetDefault("tokenizer.local_path", "./model/saved_tokenizer/tokenizer.json")
	v.SetDefault("tokenizer.download_url", "")
	v.SetDefault("artifacts.lock_ttl", 15*time.Minute)
	v.SetDefault("artifacts.download_retries", 3)
	v.SetDefault("artifacts.download_timeout", 10*time.Minute)
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("telemetry.metrics_enabled", true)
}

// LoadConfig loads config from file and TWEETSENSE_* environment variables.
// With an empty path a missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)                                // bin/
			v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("TWEETSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.Search, c.Model, c.Tokenizer, c.Artifacts, c.Storage.Redis, c.Storage.Postgres,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
