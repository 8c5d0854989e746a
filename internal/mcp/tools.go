package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/embedder"
	"github.com/dshills/agentctx/internal/engine"
	"github.com/dshills/agentctx/internal/indexer"
	"github.com/dshills/agentctx/internal/searcher"
	"github.com/dshills/agentctx/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Directory has not been indexed
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmbeddingFailed    = -32004 // Embedding provider rejected or failed the request
)

// maxReportedErrors bounds the per-file errors echoed back to the client
const maxReportedErrors = 5

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    any
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data any) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// toMCPError maps engine errors onto protocol error codes
func toMCPError(message string, err error) error {
	data := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, engine.ErrDirectoryNotFound),
		errors.Is(err, searcher.ErrEmptyQuery),
		errors.Is(err, searcher.ErrInvalidThreshold):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	case errors.Is(err, engine.ErrProjectNotFound):
		return newMCPError(ErrorCodeProjectNotFound, message, data)
	case errors.Is(err, engine.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, message, data)
	case errors.Is(err, embedder.ErrProviderFailed),
		errors.Is(err, embedder.ErrMissingAPIKey),
		errors.Is(err, embedder.ErrDimensionMismatch):
		return newMCPError(ErrorCodeEmbeddingFailed, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

type statsResponse struct {
	RunID           string   `json:"run_id"`
	FilesDiscovered int      `json:"files_discovered"`
	FilesIndexed    int      `json:"files_indexed"`
	FilesUpdated    int      `json:"files_updated"`
	FilesUnchanged  int      `json:"files_unchanged"`
	FilesFailed     int      `json:"files_failed"`
	FilesRemoved    int      `json:"files_removed"`
	ChunksEmbedded  int      `json:"chunks_embedded"`
	ChunksDropped   int      `json:"chunks_dropped"`
	DurationMS      int64    `json:"duration_ms"`
	Errors          []string `json:"errors,omitempty"`
	ErrorCount      int      `json:"error_count,omitempty"`
}

func newStatsResponse(stats *indexer.Statistics) statsResponse {
	resp := statsResponse{
		RunID:           stats.RunID,
		FilesDiscovered: stats.FilesDiscovered,
		FilesIndexed:    stats.FilesIndexed,
		FilesUpdated:    stats.FilesUpdated,
		FilesUnchanged:  stats.FilesUnchanged,
		FilesFailed:     stats.FilesFailed,
		FilesRemoved:    stats.FilesRemoved,
		ChunksEmbedded:  stats.ChunksEmbedded,
		ChunksDropped:   stats.ChunksDropped,
		DurationMS:      stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		resp.Errors = stats.ErrorMessages
		if n > maxReportedErrors {
			resp.Errors = stats.ErrorMessages[:maxReportedErrors]
			resp.ErrorCount = n
		}
	}
	return resp
}

type indexResponse struct {
	Indexed    bool          `json:"indexed"`
	Paths      []string      `json:"paths"`
	Statistics statsResponse `json:"statistics"`
}

type searchResponse struct {
	Query      string               `json:"query"`
	Results    []types.SearchResult `json:"results"`
	DurationMS int64                `json:"duration_ms"`
}

type prepareResponse struct {
	Query      string               `json:"query"`
	Documents  []types.SearchResult `json:"documents"`
	Resources  []types.SearchResult `json:"resources"`
	Statistics statsResponse        `json:"statistics"`
}

type statusResponse struct {
	Indexed            bool   `json:"indexed"`
	Path               string `json:"path"`
	ProjectID          int64  `json:"project_id,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
	Resources          int    `json:"resources"`
	Documents          int    `json:"documents"`
	ResourceEmbeddings int    `json:"resource_embeddings"`
	DocumentEmbeddings int    `json:"document_embeddings"`
	DatabaseSizeBytes  int64  `json:"database_size_bytes"`
	Message            string `json:"message,omitempty"`
}

func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requirePath(request)
	if err != nil {
		return nil, err
	}

	paths, stats, err := s.engine.IndexCodebase(ctx, path)
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}

	return jsonResult(indexResponse{
		Indexed:    true,
		Paths:      emptyIfNil(paths),
		Statistics: newStatsResponse(stats),
	})
}

func (s *Server) handleResetIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requirePath(request)
	if err != nil {
		return nil, err
	}

	if err := s.engine.ResetIndex(ctx, path); err != nil {
		return nil, toMCPError("reset failed", err)
	}
	return jsonResult(map[string]any{"reset": true, "path": path})
}

func (s *Server) handleFindRelevantDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.search(ctx, request, s.engine.FindRelevantDocuments)
}

func (s *Server) handleFindRelevantResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.search(ctx, request, s.engine.FindRelevantResources)
}

type searchFunc func(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error)

func (s *Server) search(ctx context.Context, request mcp.CallToolRequest, find searchFunc) (*mcp.CallToolResult, error) {
	query, opts, err := searchArgs(request)
	if err != nil {
		return nil, err
	}
	opts.ProjectDir = request.GetString("path", "")

	start := time.Now()
	results, err := find(ctx, query, opts)
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	s.logger.Debug("search served",
		zap.String("event", "mcp.search"),
		zap.String("tool", request.Params.Name),
		zap.Int("results", len(results)))

	return jsonResult(searchResponse{
		Query:      query,
		Results:    emptyIfNil(results),
		DurationMS: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handlePrepareContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requirePath(request)
	if err != nil {
		return nil, err
	}
	query, opts, err := searchArgs(request)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Prepare(ctx, path, query, opts)
	if err != nil {
		return nil, toMCPError("prepare failed", err)
	}

	return jsonResult(prepareResponse{
		Query:      query,
		Documents:  emptyIfNil(res.Documents),
		Resources:  emptyIfNil(res.Resources),
		Statistics: newStatsResponse(res.Stats),
	})
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requirePath(request)
	if err != nil {
		return nil, err
	}

	status, err := s.engine.Status(ctx, path)
	if errors.Is(err, engine.ErrProjectNotFound) {
		return jsonResult(statusResponse{
			Indexed: false,
			Path:    path,
			Message: "Directory not indexed. Use the index_codebase tool to index it.",
		})
	}
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	return jsonResult(statusResponse{
		Indexed:            true,
		Path:               status.Project.RootDirectory,
		ProjectID:          status.Project.ID,
		CreatedAt:          status.Project.CreatedAt.Format(time.RFC3339),
		Resources:          status.Resources,
		Documents:          status.Documents,
		ResourceEmbeddings: status.ResourceEmbeddings,
		DocumentEmbeddings: status.DocumentEmbeddings,
		DatabaseSizeBytes:  status.DatabaseSizeBytes,
	})
}

func requirePath(request mcp.CallToolRequest) (string, error) {
	path, err := request.RequireString("path")
	if err != nil || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]any{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	return path, nil
}

// searchArgs extracts query, limit and threshold. A threshold is only applied
// when the caller supplied one, so 0 stays distinguishable from "unset".
func searchArgs(request mcp.CallToolRequest) (string, types.SearchOptions, error) {
	var opts types.SearchOptions

	query, err := request.RequireString("query")
	if err != nil || query == "" {
		return "", opts, newMCPError(ErrorCodeInvalidParams, "query parameter is required and cannot be empty", map[string]any{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	args := request.GetArguments()
	if _, ok := args["limit"]; ok {
		limit := request.GetInt("limit", types.DefaultSearchLimit)
		if limit < 1 || limit > 100 {
			return "", opts, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]any{
				"param": "limit",
				"value": limit,
			})
		}
		opts.Limit = limit
	}
	if _, ok := args["threshold"]; ok {
		threshold := request.GetFloat("threshold", types.DefaultSearchThreshold)
		if threshold < -1 || threshold > 1 {
			return "", opts, newMCPError(ErrorCodeInvalidParams, "threshold must be between -1 and 1", map[string]any{
				"param": "threshold",
				"value": threshold,
			})
		}
		opts.Threshold = &threshold
	}
	return query, opts, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode response", map[string]any{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(string(b)), nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
