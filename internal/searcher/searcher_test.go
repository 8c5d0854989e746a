package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/chunker"
	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/embedder/embeddertest"
	"github.com/dshills/agentctx/internal/storage"
	"github.com/dshills/agentctx/pkg/types"
)

type fixture struct {
	s       *Searcher
	store   *storage.SQLiteStorage
	fake    *embeddertest.Embedder
	project *storage.Project
}

func setupSearcher(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project, err := store.CreateProject(context.Background(), "/repo")
	require.NoError(t, err)

	fake := embeddertest.New(2)
	fake.Pin("query", []float32{1, 0})
	adapter := embedder.NewAdapter(fake, chunker.New(zap.NewNop()), 0, zap.NewNop())

	return &fixture{
		s:       NewSearcher(store, adapter, 0, zap.NewNop()),
		store:   store,
		fake:    fake,
		project: project,
	}
}

// seed stores one chunk per path with the given vector
func (f *fixture) seed(t *testing.T, kind storage.OwnerKind, rows map[string][]float32) {
	t.Helper()
	ctx := context.Background()
	for path, vec := range rows {
		owner := &storage.Owner{ProjectID: f.project.ID, Kind: kind, FilePath: path, ContentHash: path}
		require.NoError(t, f.store.InsertOwner(ctx, owner))
		require.NoError(t, f.store.InsertEmbeddings(ctx, kind, owner.ID, []storage.Embedding{
			{Content: "content of " + path, Vector: vec, FilePath: path, StartLine: 1, EndLine: 5},
		}))
	}
}

func threshold(v float64) *float64 { return &v }

func paths(results []types.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Metadata.FilePath)
	}
	return out
}

func TestSearch_ThresholdAndOrder(t *testing.T) {
	f := setupSearcher(t)
	// similarities to the query: 0.95, 0.6, 0.91
	f.seed(t, storage.KindResource, map[string][]float32{
		"a.go": {0.95, 0.31225},
		"b.go": {0.6, 0.8},
		"c.go": {0.91, 0.41461},
	})

	results, err := f.s.SearchResources(context.Background(), "query", types.SearchOptions{Threshold: threshold(0.9)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"a.go", "c.go"}, paths(results))
	assert.InDelta(t, 0.95, results[0].Similarity, 0.001)
	assert.Equal(t, "content of a.go", results[0].Content)
	assert.Equal(t, 1, results[0].Metadata.StartLine)
	assert.Equal(t, 5, results[0].Metadata.EndLine)
	for _, r := range results {
		assert.NoError(t, r.Validate())
	}
}

func TestSearch_Defaults(t *testing.T) {
	f := setupSearcher(t)
	rows := map[string][]float32{
		"low.md": {0.4, 0.91652},
	}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		rows[name+".md"] = []float32{1, 0}
	}
	f.seed(t, storage.KindDocument, rows)

	results, err := f.s.SearchDocuments(context.Background(), "query", types.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, types.DefaultSearchLimit)
	assert.NotContains(t, paths(results), "low.md")

	all, err := f.s.SearchDocuments(context.Background(), "query", types.SearchOptions{Limit: 10, Threshold: threshold(0)})
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestSearch_KindsAreSeparate(t *testing.T) {
	f := setupSearcher(t)
	f.seed(t, storage.KindDocument, map[string][]float32{"README.md": {1, 0}})
	f.seed(t, storage.KindResource, map[string][]float32{"main.go": {1, 0}})

	docs, err := f.s.SearchDocuments(context.Background(), "query", types.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, paths(docs))

	res, err := f.s.SearchResources(context.Background(), "query", types.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(res))
}

func TestSearchBoth_EmbedsOnce(t *testing.T) {
	f := setupSearcher(t)
	f.seed(t, storage.KindDocument, map[string][]float32{"README.md": {1, 0}})
	f.seed(t, storage.KindResource, map[string][]float32{"main.go": {0.9, 0.43589}})

	resp, err := f.s.SearchBoth(context.Background(), "query", types.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, paths(resp.Documents))
	assert.Equal(t, []string{"main.go"}, paths(resp.Resources))
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 1, f.fake.Calls())
}

func TestSearch_QueryCache(t *testing.T) {
	f := setupSearcher(t)
	ctx := context.Background()

	first, err := f.s.Search(ctx, SearchRequest{Query: "query", Kind: storage.KindResource})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.s.Search(ctx, SearchRequest{Query: "query", Kind: storage.KindDocument})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, f.fake.Calls())

	f.s.ClearCache()
	third, err := f.s.Search(ctx, SearchRequest{Query: "query", Kind: storage.KindResource})
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Equal(t, 2, f.fake.Calls())
}

func TestSearch_ProjectDir(t *testing.T) {
	f := setupSearcher(t)
	ctx := context.Background()
	f.seed(t, storage.KindResource, map[string][]float32{"main.go": {1, 0}})

	other, err := f.store.CreateProject(ctx, "/other")
	require.NoError(t, err)
	owner := &storage.Owner{ProjectID: other.ID, Kind: storage.KindResource, FilePath: "other.go", ContentHash: "h"}
	require.NoError(t, f.store.InsertOwner(ctx, owner))
	require.NoError(t, f.store.InsertEmbeddings(ctx, storage.KindResource, owner.ID, []storage.Embedding{
		{Content: "x", Vector: []float32{1, 0}, FilePath: "other.go"},
	}))

	scoped, err := f.s.SearchResources(ctx, "query", types.SearchOptions{ProjectDir: "/repo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(scoped))

	all, err := f.s.SearchResources(ctx, "query", types.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.s.SearchResources(ctx, "query", types.SearchOptions{ProjectDir: "/never-indexed"})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestSearch_Errors(t *testing.T) {
	f := setupSearcher(t)
	ctx := context.Background()

	_, err := f.s.SearchDocuments(ctx, "   ", types.SearchOptions{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = f.s.SearchDocuments(ctx, "query", types.SearchOptions{Threshold: threshold(1.5)})
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = f.s.Search(ctx, SearchRequest{Query: "query", Kind: "symbols"})
	assert.ErrorIs(t, err, storage.ErrInvalidKind)

	f.fake.FailWhen("broken", embeddertest.ErrBackend)
	_, err = f.s.SearchResources(ctx, "broken query", types.SearchOptions{})
	assert.ErrorIs(t, err, embeddertest.ErrBackend)
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := setupSearcher(t)

	results, err := f.s.SearchResources(context.Background(), "query", types.SearchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
