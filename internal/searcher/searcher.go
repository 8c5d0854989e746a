package searcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/storage"
	"github.com/dshills/agentctx/pkg/types"
)

// DefaultQueryCacheSize is the number of query vectors kept in memory
const DefaultQueryCacheSize = 256

var (
	// ErrEmptyQuery is returned for blank query text
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrProjectNotFound is returned when SearchOptions.ProjectDir was never indexed
	ErrProjectNotFound = errors.New("project not indexed")
	// ErrInvalidThreshold is returned for thresholds outside [-1, 1]
	ErrInvalidThreshold = errors.New("threshold must be between -1 and 1")
)

// QueryEmbedder turns query text into a vector
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query   string
	Kind    storage.OwnerKind
	Options types.SearchOptions
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results  []types.SearchResult
	Kind     storage.OwnerKind
	Duration time.Duration
	CacheHit bool // query vector came from the cache
}

// CombinedResponse holds the document and resource results of one query
type CombinedResponse struct {
	Documents []types.SearchResult
	Resources []types.SearchResult
	Duration  time.Duration
	CacheHit  bool
}

// Searcher embeds queries and ranks stored embeddings against them
type Searcher struct {
	store  storage.Storage
	embed  QueryEmbedder
	cache  *lru.Cache[string, []float32]
	logger *zap.Logger
}

// NewSearcher creates a Searcher. cacheSize bounds the query vector cache;
// non-positive selects DefaultQueryCacheSize.
func NewSearcher(store storage.Storage, embed QueryEmbedder, cacheSize int, logger *zap.Logger) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		// only fails for non-positive sizes
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		store:  store,
		embed:  embed,
		cache:  cache,
		logger: logger,
	}
}

// Search embeds the query and returns the rows of one table scoring above the
// threshold, best first, capped at the limit.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if err := req.Kind.Validate(); err != nil {
		return nil, err
	}
	params, err := s.params(ctx, req.Options)
	if err != nil {
		return nil, err
	}

	vec, hit, err := s.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	results, err := s.rank(ctx, req.Kind, vec, params)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:  results,
		Kind:     req.Kind,
		Duration: time.Since(start),
		CacheHit: hit,
	}, nil
}

// SearchDocuments searches the document tables
func (s *Searcher) SearchDocuments(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error) {
	resp, err := s.Search(ctx, SearchRequest{Query: query, Kind: storage.KindDocument, Options: opts})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SearchResources searches the resource tables
func (s *Searcher) SearchResources(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error) {
	resp, err := s.Search(ctx, SearchRequest{Query: query, Kind: storage.KindResource, Options: opts})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SearchBoth embeds the query once and searches documents and resources
// concurrently. Each table applies the limit on its own.
func (s *Searcher) SearchBoth(ctx context.Context, query string, opts types.SearchOptions) (*CombinedResponse, error) {
	start := time.Now()

	params, err := s.params(ctx, opts)
	if err != nil {
		return nil, err
	}
	vec, hit, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	resp := &CombinedResponse{CacheHit: hit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp.Documents, err = s.rank(gctx, storage.KindDocument, vec, params)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Resources, err = s.rank(gctx, storage.KindResource, vec, params)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp.Duration = time.Since(start)
	return resp, nil
}

// EmbedQuery returns the vector for query, from the cache when possible
func (s *Searcher) EmbedQuery(ctx context.Context, query string) ([]float32, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, ErrEmptyQuery
	}

	if vec, ok := s.cache.Get(query); ok {
		return vec, true, nil
	}

	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	s.cache.Add(query, vec)
	return vec, false, nil
}

// ClearCache drops every cached query vector
func (s *Searcher) ClearCache() {
	s.cache.Purge()
}

// params applies defaults and resolves the project directory
func (s *Searcher) params(ctx context.Context, opts types.SearchOptions) (storage.SearchParams, error) {
	params := storage.SearchParams{
		Limit:     opts.EffectiveLimit(),
		Threshold: opts.EffectiveThreshold(),
	}
	if params.Threshold < -1 || params.Threshold > 1 {
		return params, fmt.Errorf("%w: %v", ErrInvalidThreshold, params.Threshold)
	}

	if opts.ProjectDir != "" {
		root, err := filepath.Abs(opts.ProjectDir)
		if err != nil {
			return params, err
		}
		project, err := s.store.GetProjectByRoot(ctx, root)
		if errors.Is(err, storage.ErrNotFound) {
			return params, fmt.Errorf("%w: %s", ErrProjectNotFound, root)
		}
		if err != nil {
			return params, err
		}
		params.ProjectID = project.ID
	}
	return params, nil
}

func (s *Searcher) rank(ctx context.Context, kind storage.OwnerKind, vec []float32, params storage.SearchParams) ([]types.SearchResult, error) {
	rows, err := s.store.SearchEmbeddings(ctx, kind, vec, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s embeddings: %w", kind, err)
	}

	results := make([]types.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, types.SearchResult{
			Content: r.Content,
			Metadata: types.ChunkMetadata{
				FilePath:  r.FilePath,
				StartLine: r.StartLine,
				EndLine:   r.EndLine,
			},
			Similarity: r.Similarity,
		})
	}

	s.logger.Debug("search ranked",
		zap.String("event", "searcher.ranked"),
		zap.String("kind", string(kind)),
		zap.Int("results", len(results)),
		zap.Int("limit", params.Limit),
		zap.Float64("threshold", params.Threshold))
	return results, nil
}

// compile-time check that the chunk adapter can embed queries
var _ QueryEmbedder = (*embedder.Adapter)(nil)
