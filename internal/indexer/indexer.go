package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/hasher"
	"github.com/dshills/agentctx/internal/storage"
	"github.com/dshills/agentctx/pkg/types"
)

// DefaultFileTimeout bounds the work spent on one file
const DefaultFileTimeout = 2 * time.Minute

// DocumentExtensions selects the document tables; every other file is a resource
var DocumentExtensions = map[string]bool{
	".md":  true,
	".txt": true,
	".mdx": true,
	".mdc": true,
}

// ErrNoOwnerID is returned when inserting a resource or document yields no id
var ErrNoOwnerID = errors.New("owner insert returned no id")

// Classify returns the owner kind for path by extension, case-insensitively
func Classify(path string) storage.OwnerKind {
	if DocumentExtensions[strings.ToLower(filepath.Ext(path))] {
		return storage.KindDocument
	}
	return storage.KindResource
}

// Outcome is the path a file took through the upsert pipeline
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeUnchanged
	OutcomeChanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// FileResult describes one upserted file
type FileResult struct {
	Path    string
	Kind    storage.OwnerKind
	Outcome Outcome
	Chunks  int // embeddings written
	Dropped int // chunks left without a vector by the backend
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	RunID           string
	FilesDiscovered int
	FilesIndexed    int // new files
	FilesUpdated    int // changed files
	FilesUnchanged  int
	FilesFailed     int
	FilesRemoved    int
	ChunksEmbedded  int
	ChunksDropped   int
	Duration        time.Duration
	ErrorMessages   []string
}

// Config contains configuration for the indexer
type Config struct {
	Workers     int           // concurrent files (default: runtime.NumCPU())
	FileTimeout time.Duration // per-file deadline (default: DefaultFileTimeout)
	MaxFileSize int64         // walker size cap (default: DefaultMaxFileSize)

	// KeepDeleted disables removing rows for files that disappeared
	KeepDeleted bool
}

// Indexer runs the upsert pipeline: hash -> lookup -> chunk -> embed -> store
type Indexer struct {
	store   storage.Storage
	adapter *embedder.Adapter
	logger  *zap.Logger
	config  Config
}

// New creates an Indexer
func New(store storage.Storage, adapter *embedder.Adapter, logger *zap.Logger, config Config) *Indexer {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.FileTimeout <= 0 {
		config.FileTimeout = DefaultFileTimeout
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		store:   store,
		adapter: adapter,
		logger:  logger,
		config:  config,
	}
}

// IndexProject walks rootPath and upserts every file into its project. It
// returns the sorted paths of the files that were indexed, updated or found
// unchanged. Per-file failures are counted in the statistics; storage failures
// outside a single file and context cancellation are returned.
func (idx *Indexer) IndexProject(ctx context.Context, rootPath string) ([]string, *Statistics, error) {
	start := time.Now()
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, err
	}
	stats := &Statistics{RunID: uuid.NewString()}
	logger := idx.logger.With(zap.String("run_id", stats.RunID), zap.String("root", rootPath))

	var skipped []string
	files, err := Walk(ctx, rootPath, WalkOptions{
		MaxFileSize: idx.config.MaxFileSize,
		OnSkip: func(path string, err error) {
			skipped = append(skipped, path)
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			logger.Warn("path skipped",
				zap.String("event", "indexer.path_skipped"),
				zap.String("path", path),
				zap.Error(err))
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover files: %w", err)
	}
	stats.FilesDiscovered = len(files)

	project, err := idx.store.GetOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get or create project: %w", err)
	}
	logger = logger.With(zap.Int64("project_id", project.ID))

	logger.Info("indexing started",
		zap.String("event", "indexer.run_started"),
		zap.Int("files", len(files)),
		zap.Int("workers", idx.config.Workers))

	paths, err := idx.indexFiles(ctx, logger, project.ID, files, stats)
	if err != nil {
		return nil, nil, err
	}

	if !idx.config.KeepDeleted {
		removed, err := idx.prune(ctx, project.ID, files, skipped)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to remove deleted files: %w", err)
		}
		stats.FilesRemoved = removed
	}

	stats.Duration = time.Since(start)
	logger.Info("indexing finished",
		zap.String("event", "indexer.run_finished"),
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("updated", stats.FilesUpdated),
		zap.Int("unchanged", stats.FilesUnchanged),
		zap.Int("failed", stats.FilesFailed),
		zap.Int("removed", stats.FilesRemoved),
		zap.Int("chunks", stats.ChunksEmbedded),
		zap.Duration("duration", stats.Duration))

	return paths, stats, nil
}

// indexFiles upserts files with at most Workers in flight
func (idx *Indexer) indexFiles(ctx context.Context, logger *zap.Logger, projectID int64, files []string, stats *Statistics) ([]string, error) {
	var (
		indexed, updated, unchanged, failed atomic.Int32
		chunks, dropped                     atomic.Int64

		mu    sync.Mutex
		paths = make([]string, 0, len(files))
	)

	g := new(errgroup.Group)
	g.SetLimit(idx.config.Workers)

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			res, err := idx.UpsertFile(ctx, projectID, path)
			if err != nil {
				failed.Add(1)
				logger.Warn("failed to index file",
					zap.String("event", "indexer.file_failed"),
					zap.String("path", path),
					zap.Error(err))
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				return nil
			}

			switch res.Outcome {
			case OutcomeNew:
				indexed.Add(1)
			case OutcomeChanged:
				updated.Add(1)
			case OutcomeUnchanged:
				unchanged.Add(1)
			}
			chunks.Add(int64(res.Chunks))
			dropped.Add(int64(res.Dropped))

			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.FilesIndexed = int(indexed.Load())
	stats.FilesUpdated = int(updated.Load())
	stats.FilesUnchanged = int(unchanged.Load())
	stats.FilesFailed = int(failed.Load())
	stats.ChunksEmbedded = int(chunks.Load())
	stats.ChunksDropped = int(dropped.Load())
	sort.Strings(stats.ErrorMessages)

	sort.Strings(paths)
	return paths, nil
}

// UpsertFile brings the stored rows for path in line with its content. A file
// whose hash matches the stored one is left untouched. Otherwise its chunks
// are embedded first and the owner row and embeddings are written in one
// transaction, so a failure leaves the previous generation in place.
func (idx *Indexer) UpsertFile(ctx context.Context, projectID int64, path string) (*FileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, idx.config.FileTimeout)
	defer cancel()

	kind := Classify(path)
	res := &FileResult{Path: path, Kind: kind}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	// the digest is taken over the same bytes that get embedded
	content, hash, err := hasher.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	existing, err := idx.store.GetOwner(ctx, kind, projectID, path)
	switch {
	case err == nil && existing.ContentHash == hash:
		res.Outcome = OutcomeUnchanged
		idx.logger.Debug("file unchanged",
			zap.String("event", "indexer.file_unchanged"),
			zap.String("path", path),
			zap.Int64("project_id", projectID))
		return res, nil
	case err == nil:
		res.Outcome = OutcomeChanged
	case errors.Is(err, storage.ErrNotFound):
		res.Outcome = OutcomeNew
	default:
		return nil, fmt.Errorf("lookup: %w", err)
	}

	batch, err := idx.adapter.EmbedBatch(ctx, string(content), path)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	rows := toRows(batch.Chunks)

	err = storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
		if res.Outcome == OutcomeNew {
			owner := &storage.Owner{
				ProjectID:   projectID,
				Kind:        kind,
				FilePath:    path,
				ContentHash: hash,
				ModTime:     info.ModTime(),
			}
			if err := tx.InsertOwner(ctx, owner); err != nil {
				return err
			}
			if owner.ID == 0 {
				return ErrNoOwnerID
			}
			return tx.InsertEmbeddings(ctx, kind, owner.ID, rows)
		}

		if _, err := tx.DeleteEmbeddingsByOwner(ctx, kind, existing.ID); err != nil {
			return err
		}
		if err := tx.UpdateOwnerContent(ctx, kind, existing.ID, hash, info.ModTime()); err != nil {
			return err
		}
		return tx.InsertEmbeddings(ctx, kind, existing.ID, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	res.Chunks = len(rows)
	res.Dropped = batch.Dropped()
	idx.logger.Debug("file indexed",
		zap.String("event", "indexer.file_indexed"),
		zap.String("path", path),
		zap.String("outcome", res.Outcome.String()),
		zap.Int("chunks", res.Chunks))
	return res, nil
}

// prune deletes rows for files of the project that were not discovered on this
// pass. Rows at or below a path the walker could not read are kept.
func (idx *Indexer) prune(ctx context.Context, projectID int64, discovered, unreadable []string) (int, error) {
	seen := make(map[string]bool, len(discovered))
	for _, p := range discovered {
		seen[p] = true
	}
	shadowed := func(path string) bool {
		for _, u := range unreadable {
			if path == u || strings.HasPrefix(path, u+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}

	removed := 0
	for _, kind := range storage.Kinds {
		owners, err := idx.store.ListOwners(ctx, kind, projectID)
		if err != nil {
			return removed, err
		}

		var stale []int64
		for _, o := range owners {
			if !seen[o.FilePath] && !shadowed(o.FilePath) {
				stale = append(stale, o.ID)
			}
		}
		if len(stale) == 0 {
			continue
		}

		err = storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
			if _, err := tx.DeleteEmbeddingsByOwners(ctx, kind, stale); err != nil {
				return err
			}
			for _, id := range stale {
				if err := tx.DeleteOwner(ctx, kind, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += len(stale)
		idx.logger.Info("removed deleted files",
			zap.String("event", "indexer.files_removed"),
			zap.Int64("project_id", projectID),
			zap.String("kind", string(kind)),
			zap.Int("count", len(stale)))
	}
	return removed, nil
}

func toRows(chunks []types.EmbeddedChunk) []storage.Embedding {
	rows := make([]storage.Embedding, 0, len(chunks))
	for _, c := range chunks {
		md := c.Metadata()
		rows = append(rows, storage.Embedding{
			Content:   c.Content,
			Vector:    c.Embedding,
			FilePath:  md.FilePath,
			StartLine: md.StartLine,
			EndLine:   md.EndLine,
		})
	}
	return rows
}
