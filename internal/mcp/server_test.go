package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/embedder/embeddertest"
	"github.com/dshills/agentctx/internal/engine"
	"github.com/dshills/agentctx/internal/indexer"
	"github.com/dshills/agentctx/internal/storage"
)

func setupServer(t *testing.T) (*Server, *embeddertest.Embedder) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fake := embeddertest.New(0)
	eng := engine.New(store, fake, zap.NewNop(), engine.Options{Indexer: indexer.Config{Workers: 2}})
	return NewServer(eng, zap.NewNop()), fake
}

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"README.md": "# Retry helper\n\nThe retry helper wraps calls with exponential backoff.\n",
		"retry.go":  "package retry\n\n// Do runs fn with exponential backoff\nfunc Do(fn func() error) error {\n\treturn fn()\n}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])

	var v T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &v))
	return v
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func TestNewServer_RegistersTools(t *testing.T) {
	s, _ := setupServer(t)

	tools := s.mcp.ListTools()
	for _, name := range []string{
		toolIndexCodebase,
		toolResetIndex,
		toolFindRelevantDocuments,
		toolFindRelevantResources,
		toolPrepareContext,
		toolGetStatus,
	} {
		assert.Contains(t, tools, name)
	}
	assert.Len(t, tools, 6)
}

func TestToolSchemas(t *testing.T) {
	assert.Equal(t, []string{"path"}, indexCodebaseTool().InputSchema.Required)
	assert.Equal(t, []string{"query"}, findRelevantDocumentsTool().InputSchema.Required)
	assert.ElementsMatch(t, []string{"path", "query"}, prepareContextTool().InputSchema.Required)

	props := findRelevantResourcesTool().InputSchema.Properties
	assert.Contains(t, props, "limit")
	assert.Contains(t, props, "threshold")
}

func TestHandleIndexCodebase(t *testing.T) {
	s, _ := setupServer(t)
	dir := seedDir(t)
	ctx := context.Background()

	result, err := s.handleIndexCodebase(ctx, callTool(toolIndexCodebase, map[string]any{"path": dir}))
	require.NoError(t, err)

	resp := decode[indexResponse](t, result)
	assert.True(t, resp.Indexed)
	assert.Len(t, resp.Paths, 2)
	assert.Equal(t, 2, resp.Statistics.FilesIndexed)
	assert.NotEmpty(t, resp.Statistics.RunID)

	t.Run("second run skips unchanged files", func(t *testing.T) {
		result, err := s.handleIndexCodebase(ctx, callTool(toolIndexCodebase, map[string]any{"path": dir}))
		require.NoError(t, err)
		resp := decode[indexResponse](t, result)
		assert.Equal(t, 0, resp.Statistics.FilesIndexed)
		assert.Equal(t, 2, resp.Statistics.FilesUnchanged)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := s.handleIndexCodebase(ctx, callTool(toolIndexCodebase, map[string]any{}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("nonexistent directory", func(t *testing.T) {
		_, err := s.handleIndexCodebase(ctx, callTool(toolIndexCodebase, map[string]any{
			"path": filepath.Join(dir, "missing"),
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleFindRelevant(t *testing.T) {
	s, _ := setupServer(t)
	dir := seedDir(t)
	ctx := context.Background()

	_, err := s.handleIndexCodebase(ctx, callTool(toolIndexCodebase, map[string]any{"path": dir}))
	require.NoError(t, err)

	t.Run("documents", func(t *testing.T) {
		result, err := s.handleFindRelevantDocuments(ctx, callTool(toolFindRelevantDocuments, map[string]any{
			"query":     "retry helper exponential backoff",
			"threshold": 0.0,
		}))
		require.NoError(t, err)

		resp := decode[searchResponse](t, result)
		require.NotEmpty(t, resp.Results)
		for _, r := range resp.Results {
			assert.Equal(t, filepath.Join(dir, "README.md"), r.Metadata.FilePath)
			assert.Greater(t, r.Similarity, 0.0)
		}
	})

	t.Run("resources", func(t *testing.T) {
		result, err := s.handleFindRelevantResources(ctx, callTool(toolFindRelevantResources, map[string]any{
			"query":     "runs fn with exponential backoff",
			"threshold": 0.0,
			"limit":     1,
			"path":      dir,
		}))
		require.NoError(t, err)

		resp := decode[searchResponse](t, result)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, filepath.Join(dir, "retry.go"), resp.Results[0].Metadata.FilePath)
	})

	t.Run("no match returns empty list", func(t *testing.T) {
		result, err := s.handleFindRelevantResources(ctx, callTool(toolFindRelevantResources, map[string]any{
			"query":     "zebra",
			"threshold": 0.99,
		}))
		require.NoError(t, err)

		resp := decode[searchResponse](t, result)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := s.handleFindRelevantDocuments(ctx, callTool(toolFindRelevantDocuments, map[string]any{"query": ""}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("limit out of range", func(t *testing.T) {
		_, err := s.handleFindRelevantDocuments(ctx, callTool(toolFindRelevantDocuments, map[string]any{
			"query": "retry",
			"limit": 0,
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		_, err := s.handleFindRelevantDocuments(ctx, callTool(toolFindRelevantDocuments, map[string]any{
			"query":     "retry",
			"threshold": 1.5,
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})

	t.Run("unindexed path", func(t *testing.T) {
		_, err := s.handleFindRelevantDocuments(ctx, callTool(toolFindRelevantDocuments, map[string]any{
			"query": "retry",
			"path":  t.TempDir(),
		}))
		requireCode(t, err, ErrorCodeProjectNotFound)
	})
}

func TestHandleFindRelevant_EmbeddingFailure(t *testing.T) {
	s, fake := setupServer(t)
	fake.FailWhen("boom", fmt.Errorf("%w: upstream 500", embedder.ErrProviderFailed))

	_, err := s.handleFindRelevantResources(context.Background(), callTool(toolFindRelevantResources, map[string]any{
		"query": "boom",
	}))
	requireCode(t, err, ErrorCodeEmbeddingFailed)
}

func TestHandlePrepareContext(t *testing.T) {
	s, _ := setupServer(t)
	dir := seedDir(t)

	result, err := s.handlePrepareContext(context.Background(), callTool(toolPrepareContext, map[string]any{
		"path":      dir,
		"query":     "exponential backoff",
		"threshold": 0.0,
	}))
	require.NoError(t, err)

	resp := decode[prepareResponse](t, result)
	assert.Equal(t, 2, resp.Statistics.FilesIndexed)
	assert.NotEmpty(t, resp.Documents)
	assert.NotEmpty(t, resp.Resources)

	t.Run("requires query", func(t *testing.T) {
		_, err := s.handlePrepareContext(context.Background(), callTool(toolPrepareContext, map[string]any{"path": dir}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleGetStatusAndReset(t *testing.T) {
	s, _ := setupServer(t)
	dir := seedDir(t)
	ctx := context.Background()

	result, err := s.handleGetStatus(ctx, callTool(toolGetStatus, map[string]any{"path": dir}))
	require.NoError(t, err)
	status := decode[statusResponse](t, result)
	assert.False(t, status.Indexed)
	assert.NotEmpty(t, status.Message)

	_, err = s.handleIndexCodebase(ctx, callTool(toolIndexCodebase, map[string]any{"path": dir}))
	require.NoError(t, err)

	result, err = s.handleGetStatus(ctx, callTool(toolGetStatus, map[string]any{"path": dir}))
	require.NoError(t, err)
	status = decode[statusResponse](t, result)
	assert.True(t, status.Indexed)
	assert.Equal(t, dir, status.Path)
	assert.Equal(t, 1, status.Resources)
	assert.Equal(t, 1, status.Documents)
	assert.Positive(t, status.ResourceEmbeddings)
	assert.Positive(t, status.DocumentEmbeddings)

	result, err = s.handleResetIndex(ctx, callTool(toolResetIndex, map[string]any{"path": dir}))
	require.NoError(t, err)
	assert.NotNil(t, result)

	result, err = s.handleGetStatus(ctx, callTool(toolGetStatus, map[string]any{"path": dir}))
	require.NoError(t, err)
	status = decode[statusResponse](t, result)
	assert.False(t, status.Indexed)

	t.Run("reset of unindexed directory is a no-op", func(t *testing.T) {
		_, err := s.handleResetIndex(ctx, callTool(toolResetIndex, map[string]any{"path": t.TempDir()}))
		assert.NoError(t, err)
	})
}

func TestToMCPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"directory", engine.ErrDirectoryNotFound, ErrorCodeInvalidParams},
		{"not indexed", fmt.Errorf("wrap: %w", engine.ErrProjectNotFound), ErrorCodeProjectNotFound},
		{"busy", engine.ErrIndexingInProgress, ErrorCodeIndexingInProgress},
		{"provider", fmt.Errorf("x: %w", embedder.ErrProviderFailed), ErrorCodeEmbeddingFailed},
		{"api key", embedder.ErrMissingAPIKey, ErrorCodeEmbeddingFailed},
		{"other", assert.AnError, ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, toMCPError("failed", tt.err), tt.code)
		})
	}
}
