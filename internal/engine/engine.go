package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/chunker"
	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/indexer"
	"github.com/dshills/agentctx/internal/searcher"
	"github.com/dshills/agentctx/internal/storage"
	"github.com/dshills/agentctx/pkg/types"
)

var (
	// ErrDirectoryNotFound is returned when the directory to index does not exist
	ErrDirectoryNotFound = errors.New("directory not found")
	// ErrProjectNotFound is returned when a directory has never been indexed
	ErrProjectNotFound = searcher.ErrProjectNotFound
	// ErrIndexingInProgress is returned when the same directory is already being indexed
	ErrIndexingInProgress = errors.New("indexing already in progress")
)

// Options configures an Engine
type Options struct {
	Indexer        indexer.Config
	QueryCacheSize int
	BatchSize      int // texts per embedding request
}

// Engine wires chunker, embedder, store, indexer and searcher together and
// exposes the operations used by the tool server and the CLI.
type Engine struct {
	store    storage.Storage
	backend  embedder.Embedder
	adapter  *embedder.Adapter
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	lock     indexer.IndexLock
	logger   *zap.Logger
}

// New builds an Engine around an opened store and a resolved embedding backend.
// The engine does not own either; callers close them.
func New(store storage.Storage, backend embedder.Embedder, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := embedder.NewAdapter(backend, chunker.New(logger), opts.BatchSize, logger)
	return &Engine{
		store:    store,
		backend:  backend,
		adapter:  adapter,
		indexer:  indexer.New(store, adapter, logger, opts.Indexer),
		searcher: searcher.NewSearcher(store, adapter, opts.QueryCacheSize, logger),
		logger:   logger,
	}
}

// Embedder returns the embedding backend
func (e *Engine) Embedder() embedder.Embedder {
	return e.backend
}

// IndexCodebase indexes every file under dir and returns the sorted paths that
// were indexed, updated or found unchanged. Concurrent calls for the same
// directory fail with ErrIndexingInProgress.
func (e *Engine) IndexCodebase(ctx context.Context, dir string) ([]string, *indexer.Statistics, error) {
	root, err := resolveDir(dir)
	if err != nil {
		return nil, nil, err
	}

	if !e.lock.TryAcquire(root) {
		return nil, nil, fmt.Errorf("%w: %s", ErrIndexingInProgress, root)
	}
	defer e.lock.Release(root)

	return e.indexer.IndexProject(ctx, root)
}

// Indexing reports whether dir is being indexed right now
func (e *Engine) Indexing(dir string) bool {
	root, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	return e.lock.Held(root)
}

// ResetIndex deletes the project for dir together with all of its resources,
// documents and embeddings. Resetting a directory that was never indexed is a
// no-op.
func (e *Engine) ResetIndex(ctx context.Context, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	project, err := e.store.GetProjectByRoot(ctx, root)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up project: %w", err)
	}

	if !e.lock.TryAcquire(root) {
		return fmt.Errorf("%w: %s", ErrIndexingInProgress, root)
	}
	defer e.lock.Release(root)

	err = storage.WithTx(ctx, e.store, func(tx storage.Tx) error {
		for _, kind := range storage.Kinds {
			if _, err := tx.DeleteEmbeddingsByProject(ctx, kind, project.ID); err != nil {
				return err
			}
			if _, err := tx.DeleteOwnersByProject(ctx, kind, project.ID); err != nil {
				return err
			}
		}
		return tx.DeleteProject(ctx, project.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}

	e.searcher.ClearCache()
	e.logger.Info("index reset",
		zap.String("event", "engine.index_reset"),
		zap.String("root", root),
		zap.Int64("project_id", project.ID))
	return nil
}

// FindRelevantDocuments returns the document chunks most similar to query
func (e *Engine) FindRelevantDocuments(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error) {
	return e.searcher.SearchDocuments(ctx, query, opts)
}

// FindRelevantResources returns the resource chunks most similar to query
func (e *Engine) FindRelevantResources(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error) {
	return e.searcher.SearchResources(ctx, query, opts)
}

// PrepareResult is the outcome of Prepare
type PrepareResult struct {
	Paths     []string
	Stats     *indexer.Statistics
	Documents []types.SearchResult
	Resources []types.SearchResult
}

// Prepare brings the index of dir up to date and then queries both tables,
// scoped to that project.
func (e *Engine) Prepare(ctx context.Context, dir, query string, opts types.SearchOptions) (*PrepareResult, error) {
	paths, stats, err := e.IndexCodebase(ctx, dir)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	opts.ProjectDir = root

	resp, err := e.searcher.SearchBoth(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	return &PrepareResult{
		Paths:     paths,
		Stats:     stats,
		Documents: resp.Documents,
		Resources: resp.Resources,
	}, nil
}

// Status returns row counts and database size for the project at dir
func (e *Engine) Status(ctx context.Context, dir string) (*storage.Status, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	project, err := e.store.GetProjectByRoot(ctx, root)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, root)
	}
	if err != nil {
		return nil, err
	}
	return e.store.GetStatus(ctx, project.ID)
}

// Projects lists every indexed root directory
func (e *Engine) Projects(ctx context.Context) ([]storage.Project, error) {
	return e.store.ListProjects(ctx)
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", ErrDirectoryNotFound)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
	}
	return root, nil
}
