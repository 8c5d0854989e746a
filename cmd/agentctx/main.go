// Command agentctx indexes source trees into an embedding store and serves
// semantic retrieval over MCP or the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/config"
	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/engine"
	"github.com/dshills/agentctx/internal/indexer"
	"github.com/dshills/agentctx/internal/logging"
	"github.com/dshills/agentctx/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctx",
		Short: "Code-aware embedding index for AI coding agents",
		Long: `agentctx chunks source files and documentation along syntax boundaries,
embeds the chunks and stores them so agents can retrieve relevant context.

Configuration is read from the environment (and a .env file if present):
  AGENTCTX_DB_DRIVER           sqlite (default) or postgres
  AGENTCTX_DB_PATH             SQLite database file (default: ~/.agentctx/index.db)
  AGENTCTX_POSTGRES_DSN        PostgreSQL connection string
  AGENTCTX_EMBEDDING_PROVIDER  openai (default) or local-model
  OPENAI_API_KEY               OpenAI API key
  AGENTCTX_LOCAL_MODEL_URL     OpenAI-compatible endpoint of a local model
  AGENTCTX_LOG_LEVEL           debug, info, warn or error`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"agentctx {{.Version}}\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		buildTime, storage.BuildMode, storage.DriverName))

	root.AddCommand(
		newServeCmd(),
		newIndexCmd(),
		newResetCmd(),
		newSearchCmd(),
		newPrepareCmd(),
		newStatusCmd(),
	)
	return root
}

// app holds the components every subcommand needs
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Storage
	engine *engine.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	backend, err := embedder.New(cfg.Embedder())
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	eng := engine.New(store, backend, logger, engine.Options{
		Indexer: indexer.Config{
			Workers:     cfg.Workers,
			FileTimeout: cfg.FileTimeout,
			MaxFileSize: cfg.MaxFileSize,
		},
	})

	logger.Debug("application initialized",
		zap.String("event", "app.initialized"),
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("embedding_provider", backend.Provider()),
		zap.String("embedding_model", backend.Model()),
		zap.Int("dimension", backend.Dimension()))

	return &app{cfg: cfg, logger: logger, store: store, engine: eng}, nil
}

func (a *app) Close() {
	if err := a.engine.Embedder().Close(); err != nil {
		a.logger.Warn("failed to close embedder", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// withApp builds the application for the duration of one command
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}
