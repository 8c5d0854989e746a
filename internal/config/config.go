package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/storage"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults not owned by the storage or embedder packages
const (
	DefaultFileTimeout = 2 * time.Minute
	DefaultMaxFileSize = 1 << 20
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultDBPath      = "~/.agentctx/index.db"
)

// Config holds all configuration for the application.
type Config struct {
	DBDriver    string
	DBPath      string
	PostgresDSN string

	EmbeddingProvider  string
	OpenAIAPIKey       string
	EmbeddingModel     string
	EmbeddingDimension int

	LocalModelURL       string
	LocalModelName      string
	LocalModelDimension int
	LocalModelBatch     bool

	CacheSize   int
	Workers     int
	FileTimeout time.Duration
	MaxFileSize int64

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults for
// optional fields. A .env file in the working directory is loaded first;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the environment without loading .env or validating
func FromEnv() (*Config, error) {
	dbPath, err := expandHome(getEnv("AGENTCTX_DB_PATH", DefaultDBPath))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBDriver:          strings.ToLower(getEnv("AGENTCTX_DB_DRIVER", storage.DriverSQLite)),
		DBPath:            dbPath,
		PostgresDSN:       getEnv("AGENTCTX_POSTGRES_DSN", ""),
		EmbeddingProvider: strings.ToLower(getEnv("AGENTCTX_EMBEDDING_PROVIDER", embedder.ProviderOpenAI)),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		EmbeddingModel:    getEnv("AGENTCTX_EMBEDDING_MODEL", embedder.DefaultOpenAIModel),
		LocalModelURL:     getEnv("AGENTCTX_LOCAL_MODEL_URL", embedder.DefaultLocalModelURL),
		LocalModelName:    getEnv("AGENTCTX_LOCAL_MODEL_NAME", embedder.DefaultLocalModelName),
		LogLevel:          strings.ToLower(getEnv("AGENTCTX_LOG_LEVEL", DefaultLogLevel)),
		LogFormat:         strings.ToLower(getEnv("AGENTCTX_LOG_FORMAT", DefaultLogFormat)),
	}

	if cfg.EmbeddingDimension, err = getEnvInt("AGENTCTX_EMBEDDING_DIMENSION", embedder.OpenAIDimension); err != nil {
		return nil, err
	}
	if cfg.LocalModelDimension, err = getEnvInt("AGENTCTX_LOCAL_MODEL_DIMENSION", embedder.LocalModelDimension); err != nil {
		return nil, err
	}
	if cfg.LocalModelBatch, err = getEnvBool("AGENTCTX_LOCAL_MODEL_BATCH", true); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = getEnvInt("AGENTCTX_CACHE_SIZE", embedder.DefaultCacheSize); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("AGENTCTX_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	maxSize, err := getEnvInt("AGENTCTX_MAX_FILE_SIZE", DefaultMaxFileSize)
	if err != nil {
		return nil, err
	}
	cfg.MaxFileSize = int64(maxSize)

	timeout := getEnv("AGENTCTX_FILE_TIMEOUT", DefaultFileTimeout.String())
	if cfg.FileTimeout, err = time.ParseDuration(timeout); err != nil {
		return nil, fmt.Errorf("AGENTCTX_FILE_TIMEOUT must be a duration: %w", err)
	}

	return cfg, nil
}

// Validate reports unknown drivers and providers, missing credentials and
// out-of-range numbers.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case storage.DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("AGENTCTX_DB_PATH is required for sqlite"))
		}
	case storage.DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("AGENTCTX_POSTGRES_DSN is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AGENTCTX_DB_DRIVER %q", c.DBDriver))
	}

	switch c.EmbeddingProvider {
	case embedder.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case embedder.ProviderLocalModel:
		if c.LocalModelURL == "" {
			errs = append(errs, errors.New("AGENTCTX_LOCAL_MODEL_URL is required for the local-model provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AGENTCTX_EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}

	if c.Dimension() <= 0 {
		errs = append(errs, errors.New("embedding dimension must be greater than 0"))
	}
	if c.CacheSize < 0 {
		errs = append(errs, errors.New("AGENTCTX_CACHE_SIZE must not be negative"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("AGENTCTX_WORKERS must be greater than 0"))
	}
	if c.FileTimeout <= 0 {
		errs = append(errs, errors.New("AGENTCTX_FILE_TIMEOUT must be positive"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("AGENTCTX_MAX_FILE_SIZE must be greater than 0"))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("AGENTCTX_LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Dimension is the vector width of the active provider
func (c *Config) Dimension() int {
	if c.EmbeddingProvider == embedder.ProviderLocalModel {
		return c.LocalModelDimension
	}
	return c.EmbeddingDimension
}

// Storage returns the storage settings
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Driver:    c.DBDriver,
		Path:      c.DBPath,
		DSN:       c.PostgresDSN,
		Dimension: c.Dimension(),
	}
}

// Embedder returns the settings of the active embedding provider
func (c *Config) Embedder() embedder.Config {
	if c.EmbeddingProvider == embedder.ProviderLocalModel {
		return embedder.Config{
			Provider:   embedder.ProviderLocalModel,
			Model:      c.LocalModelName,
			BaseURL:    c.LocalModelURL,
			Dimension:  c.LocalModelDimension,
			CacheSize:  c.CacheSize,
			LocalBatch: c.LocalModelBatch,
		}
	}
	return embedder.Config{
		Provider:  c.EmbeddingProvider,
		APIKey:    c.OpenAIAPIKey,
		Model:     c.EmbeddingModel,
		Dimension: c.EmbeddingDimension,
		CacheSize: c.CacheSize,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
