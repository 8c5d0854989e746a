package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/agentctx/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "agentctx"
)

// ServerVersion is reported during the MCP handshake. Set at build time.
var ServerVersion = "dev"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	logger *zap.Logger
}

// NewServer creates a new MCP server instance backed by eng
func NewServer(eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:    mcpServer,
		engine: eng,
		logger: logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol over stdin/stdout until ctx is cancelled or
// the client closes the stream.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("mcp server started", zap.String("event", "mcp.started"))
	err := stdio.Listen(ctx, in, out)
	s.logger.Info("mcp server stopped", zap.String("event", "mcp.stopped"))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(resetIndexTool(), s.handleResetIndex)
	s.mcp.AddTool(findRelevantDocumentsTool(), s.handleFindRelevantDocuments)
	s.mcp.AddTool(findRelevantResourcesTool(), s.handleFindRelevantResources)
	s.mcp.AddTool(prepareContextTool(), s.handlePrepareContext)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
