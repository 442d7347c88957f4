// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (RAGSPACE_ prefix, runtime override)
//  2. Config file (~/.ragspace/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - AI: chat model, embedder model, rerank settings
//   - Storage: PostgreSQL connection for the pgvector chunk store
//   - Ingest: chunk profiles, embedding batch size, worker pool
//   - Resilience: per-call timeout, retry attempts and backoff
//
// Validation is fail-fast: Load returns a sentinel-wrapped error for the
// first invalid value so callers can check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the chat model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunkProfile indicates a chunk size/overlap pair is out of range.
	ErrInvalidChunkProfile = errors.New("invalid chunk profile")

	// ErrInvalidTopK indicates the default top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidWorkerPool indicates the worker pool size is out of range.
	ErrInvalidWorkerPool = errors.New("invalid worker pool size")

	// ErrInvalidTimeout indicates the per-call timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid call timeout")

	// ErrInvalidRetry indicates the retry attempts or backoff are out of range.
	ErrInvalidRetry = errors.New("invalid retry settings")

	// ErrInvalidContextLength indicates the max context length is out of range.
	ErrInvalidContextLength = errors.New("invalid max context length")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

const (
	// DefaultEmbedderModel truncates to 768 dimensions via
	// OutputDimensionality; the chunks table vector column matches.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultChatModel is used for reranking and answer generation.
	DefaultChatModel = "gemini-2.5-flash"

	// EmbeddingDimension is the fixed vector dimension of the chunk store.
	EmbeddingDimension = 768
)

// ChunkProfile holds the target size and overlap for one content profile.
type ChunkProfile struct {
	Size    int `mapstructure:"size" json:"size"`
	Overlap int `mapstructure:"overlap" json:"overlap"`
}

// Config stores application configuration.
// SECURITY: the PostgreSQL password is masked in String().
type Config struct {
	// AI model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Retrieval configuration
	DefaultTopK     int  `mapstructure:"default_top_k" json:"default_top_k"`
	RerankEnabled   bool `mapstructure:"rerank_enabled" json:"rerank_enabled"`
	RerankOverfetch int  `mapstructure:"rerank_overfetch" json:"rerank_overfetch"`

	// Context assembly
	MaxContextLength int `mapstructure:"max_context_length" json:"max_context_length"`
	MaxHistoryTurns  int `mapstructure:"max_history_turns" json:"max_history_turns"`

	// Ingest configuration
	ChunkProse     ChunkProfile `mapstructure:"chunk_prose" json:"chunk_prose"`
	ChunkCode      ChunkProfile `mapstructure:"chunk_code" json:"chunk_code"`
	ChunkMarkdown  ChunkProfile `mapstructure:"chunk_markdown" json:"chunk_markdown"`
	EmbedBatchSize int          `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	WorkerPoolSize int          `mapstructure:"worker_pool_size" json:"worker_pool_size"`

	// Resilience configuration
	CallTimeout         time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
	RetryAttempts       int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff" json:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff" json:"retry_max_backoff"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second" json:"requests_per_second"`

	// A document stuck in processing longer than this is eligible for
	// forced re-claim (crash recovery).
	StaleClaimAfter time.Duration `mapstructure:"stale_claim_after" json:"stale_claim_after"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragspace")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("RAGSPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every field at its default value,
// bypassing file and environment lookup. Used by tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are hardcoded and always unmarshal; a failure here is a bug.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("BUG: default config does not unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("model_name", DefaultChatModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	// Retrieval defaults
	v.SetDefault("default_top_k", 5)
	v.SetDefault("rerank_enabled", true)
	v.SetDefault("rerank_overfetch", 2)

	// Context assembly defaults
	v.SetDefault("max_context_length", 4000)
	v.SetDefault("max_history_turns", 10)

	// Ingest defaults
	v.SetDefault("chunk_prose.size", 500)
	v.SetDefault("chunk_prose.overlap", 100)
	v.SetDefault("chunk_code.size", 300)
	v.SetDefault("chunk_code.overlap", 50)
	v.SetDefault("chunk_markdown.size", 400)
	v.SetDefault("chunk_markdown.overlap", 80)
	v.SetDefault("embed_batch_size", 96)
	v.SetDefault("worker_pool_size", 3)

	// Resilience defaults
	v.SetDefault("call_timeout", 30*time.Second)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_initial_backoff", 500*time.Millisecond)
	v.SetDefault("retry_max_backoff", 10*time.Second)
	v.SetDefault("requests_per_second", 5.0)
	v.SetDefault("stale_claim_after", 10*time.Minute)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragspace")
	v.SetDefault("postgres_password", "ragspace_dev_password")
	v.SetDefault("postgres_db_name", "ragspace")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// Validate checks all configuration values, returning the first violation
// wrapped in its sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	for _, p := range []struct {
		name    string
		profile ChunkProfile
	}{
		{"prose", c.ChunkProse},
		{"code", c.ChunkCode},
		{"markdown", c.ChunkMarkdown},
	} {
		if p.profile.Size < 50 || p.profile.Size > 10000 {
			return fmt.Errorf("%w: %s size %d not in [50, 10000]",
				ErrInvalidChunkProfile, p.name, p.profile.Size)
		}
		if p.profile.Overlap < 0 || p.profile.Overlap >= p.profile.Size {
			return fmt.Errorf("%w: %s overlap %d must be in [0, size)",
				ErrInvalidChunkProfile, p.name, p.profile.Overlap)
		}
	}
	if c.DefaultTopK < 1 || c.DefaultTopK > 100 {
		return fmt.Errorf("%w: %d not in [1, 100]", ErrInvalidTopK, c.DefaultTopK)
	}
	if c.RerankOverfetch < 1 || c.RerankOverfetch > 10 {
		return fmt.Errorf("%w: rerank overfetch %d not in [1, 10]", ErrInvalidTopK, c.RerankOverfetch)
	}
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > 250 {
		return fmt.Errorf("%w: embed batch size %d not in [1, 250]", ErrInvalidChunkProfile, c.EmbedBatchSize)
	}
	if c.WorkerPoolSize < 1 || c.WorkerPoolSize > 64 {
		return fmt.Errorf("%w: %d not in [1, 64]", ErrInvalidWorkerPool, c.WorkerPoolSize)
	}
	if c.CallTimeout < time.Second || c.CallTimeout > 10*time.Minute {
		return fmt.Errorf("%w: %v not in [1s, 10m]", ErrInvalidTimeout, c.CallTimeout)
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > 10 {
		return fmt.Errorf("%w: attempts %d not in [0, 10]", ErrInvalidRetry, c.RetryAttempts)
	}
	if c.RetryInitialBackoff <= 0 || c.RetryMaxBackoff < c.RetryInitialBackoff {
		return fmt.Errorf("%w: backoff interval must be positive and max >= initial", ErrInvalidRetry)
	}
	if c.MaxContextLength < 100 || c.MaxContextLength > 1_000_000 {
		return fmt.Errorf("%w: %d not in [100, 1000000]", ErrInvalidContextLength, c.MaxContextLength)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	return nil
}

// PostgresURL returns the PostgreSQL URL used by pgxpool and golang-migrate.
// url.URL handles encoding of special characters in credentials.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}

// parseDatabaseURL applies DATABASE_URL when set, overriding the individual
// postgres_* settings. Common in cloud deployments.
func (c *Config) parseDatabaseURL() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("invalid DATABASE_URL scheme: %s", parsed.Scheme)
	}

	c.PostgresHost = parsed.Hostname()
	if port := parsed.Port(); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &c.PostgresPort); err != nil {
			return fmt.Errorf("invalid DATABASE_URL port %q: %w", port, err)
		}
	}
	if parsed.User != nil {
		c.PostgresUser = parsed.User.Username()
		if pw, ok := parsed.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	c.PostgresDBName = strings.TrimPrefix(parsed.Path, "/")
	if mode := parsed.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// String renders the configuration for logging with the password masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{model=%s embedder=%s top_k=%d rerank=%t pool=%d postgres=%s:%d/%s}",
		c.ModelName, c.EmbedderModel, c.DefaultTopK, c.RerankEnabled,
		c.WorkerPoolSize, c.PostgresHost, c.PostgresPort, c.PostgresDBName)
}
