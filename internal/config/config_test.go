package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/storage"
)

var envVars = []string{
	"AGENTCTX_DB_DRIVER", "AGENTCTX_DB_PATH", "AGENTCTX_POSTGRES_DSN",
	"AGENTCTX_EMBEDDING_PROVIDER", "OPENAI_API_KEY", "AGENTCTX_EMBEDDING_MODEL",
	"AGENTCTX_EMBEDDING_DIMENSION", "AGENTCTX_LOCAL_MODEL_URL", "AGENTCTX_LOCAL_MODEL_NAME",
	"AGENTCTX_LOCAL_MODEL_DIMENSION", "AGENTCTX_LOCAL_MODEL_BATCH", "AGENTCTX_CACHE_SIZE",
	"AGENTCTX_WORKERS", "AGENTCTX_FILE_TIMEOUT", "AGENTCTX_MAX_FILE_SIZE",
	"AGENTCTX_LOG_LEVEL", "AGENTCTX_LOG_FORMAT",
}

// clearEnv blanks every variable the package reads; t.Setenv restores them
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, storage.DriverSQLite, cfg.DBDriver)
	assert.Equal(t, filepath.Join(home, ".agentctx", "index.db"), cfg.DBPath)
	assert.Equal(t, embedder.ProviderOpenAI, cfg.EmbeddingProvider)
	assert.Equal(t, embedder.DefaultOpenAIModel, cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
	assert.Equal(t, "http://localhost:8080/v1", cfg.LocalModelURL)
	assert.Equal(t, "nomic-embed-text", cfg.LocalModelName)
	assert.Equal(t, 768, cfg.LocalModelDimension)
	assert.True(t, cfg.LocalModelBatch)
	assert.Equal(t, 10000, cfg.CacheSize)
	assert.Greater(t, cfg.Workers, 0)
	assert.Equal(t, 2*time.Minute, cfg.FileTimeout)
	assert.Equal(t, int64(1<<20), cfg.MaxFileSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTCTX_DB_DRIVER", "POSTGRES")
	t.Setenv("AGENTCTX_POSTGRES_DSN", "postgres://localhost/agentctx")
	t.Setenv("AGENTCTX_EMBEDDING_PROVIDER", "local-model")
	t.Setenv("AGENTCTX_LOCAL_MODEL_DIMENSION", "384")
	t.Setenv("AGENTCTX_LOCAL_MODEL_BATCH", "false")
	t.Setenv("AGENTCTX_WORKERS", "3")
	t.Setenv("AGENTCTX_FILE_TIMEOUT", "45s")
	t.Setenv("AGENTCTX_LOG_FORMAT", "console")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, storage.DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 45*time.Second, cfg.FileTimeout)
	assert.Equal(t, 384, cfg.Dimension())

	sc := cfg.Storage()
	assert.Equal(t, "postgres://localhost/agentctx", sc.DSN)
	assert.Equal(t, 384, sc.Dimension)

	ec := cfg.Embedder()
	assert.Equal(t, embedder.ProviderLocalModel, ec.Provider)
	assert.Equal(t, "nomic-embed-text", ec.Model)
	assert.Equal(t, "http://localhost:8080/v1", ec.BaseURL)
	assert.False(t, ec.LocalBatch)
}

func TestFromEnv_ParseErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"AGENTCTX_EMBEDDING_DIMENSION", "wide"},
		{"AGENTCTX_LOCAL_MODEL_DIMENSION", "1.5"},
		{"AGENTCTX_LOCAL_MODEL_BATCH", "sometimes"},
		{"AGENTCTX_CACHE_SIZE", "big"},
		{"AGENTCTX_WORKERS", "many"},
		{"AGENTCTX_MAX_FILE_SIZE", "1MB"},
		{"AGENTCTX_FILE_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func validConfig() *Config {
	return &Config{
		DBDriver:           storage.DriverSQLite,
		DBPath:             "/tmp/index.db",
		EmbeddingProvider:  embedder.ProviderOpenAI,
		OpenAIAPIKey:       "sk-test",
		EmbeddingDimension: 1536,
		Workers:            2,
		FileTimeout:        time.Minute,
		MaxFileSize:        1024,
		LogFormat:          "json",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "AGENTCTX_DB_DRIVER"},
		{"postgres without dsn", func(c *Config) { c.DBDriver = storage.DriverPostgres }, "AGENTCTX_POSTGRES_DSN"},
		{"missing api key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"unknown provider", func(c *Config) { c.EmbeddingProvider = "jina" }, "AGENTCTX_EMBEDDING_PROVIDER"},
		{"local model without key", func(c *Config) {
			c.EmbeddingProvider = embedder.ProviderLocalModel
			c.OpenAIAPIKey = ""
			c.LocalModelURL = "http://localhost:11434/v1"
			c.LocalModelDimension = 768
		}, ""},
		{"zero dimension", func(c *Config) { c.EmbeddingDimension = 0 }, "dimension"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "AGENTCTX_WORKERS"},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }, "AGENTCTX_CACHE_SIZE"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "AGENTCTX_LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	for _, key := range envVars {
		require.NoError(t, os.Unsetenv(key))
	}

	dir := t.TempDir()
	envFile := "OPENAI_API_KEY=sk-from-dotenv\nAGENTCTX_DB_PATH=" + filepath.Join(dir, "index.db") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(envFile), 0o600))

	t.Chdir(dir)
	t.Cleanup(func() {
		_ = os.Unsetenv("OPENAI_API_KEY")
		_ = os.Unsetenv("AGENTCTX_DB_PATH")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.OpenAIAPIKey)
	assert.Equal(t, filepath.Join(dir, "index.db"), cfg.DBPath)
}
