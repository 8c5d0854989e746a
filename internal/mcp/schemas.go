package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/agentctx/pkg/types"
)

const (
	toolIndexCodebase         = "index_codebase"
	toolResetIndex            = "reset_index"
	toolFindRelevantDocuments = "find_relevant_documents"
	toolFindRelevantResources = "find_relevant_resources"
	toolPrepareContext        = "prepare_context"
	toolGetStatus             = "get_status"
)

func pathParam(description string) mcp.ToolOption {
	return mcp.WithString("path", mcp.Required(), mcp.Description(description))
}

func searchParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or code query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return"),
			mcp.DefaultNumber(types.DefaultSearchLimit),
			mcp.Min(1),
			mcp.Max(100),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum cosine similarity a result must exceed"),
			mcp.DefaultNumber(types.DefaultSearchThreshold),
			mcp.Min(-1),
			mcp.Max(1),
		),
	}
}

func indexCodebaseTool() mcp.Tool {
	return mcp.NewTool(toolIndexCodebase,
		mcp.WithDescription("Index every text file under a directory. Unchanged files are skipped by content hash."),
		pathParam("Directory to index"),
	)
}

func resetIndexTool() mcp.Tool {
	return mcp.NewTool(toolResetIndex,
		mcp.WithDescription("Delete the index of a directory together with all of its embeddings"),
		mcp.WithDestructiveHintAnnotation(true),
		pathParam("Previously indexed directory"),
	)
}

func findRelevantDocumentsTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Search documentation chunks (markdown, text) by semantic similarity"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("path", mcp.Description("Restrict results to this indexed directory")),
	}
	return mcp.NewTool(toolFindRelevantDocuments, append(opts, searchParams()...)...)
}

func findRelevantResourcesTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Search source code chunks by semantic similarity"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("path", mcp.Description("Restrict results to this indexed directory")),
	}
	return mcp.NewTool(toolFindRelevantResources, append(opts, searchParams()...)...)
}

func prepareContextTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Bring the index of a directory up to date, then return the documents and resources most relevant to a query"),
		pathParam("Directory to index and search"),
	}
	return mcp.NewTool(toolPrepareContext, append(opts, searchParams()...)...)
}

func getStatusTool() mcp.Tool {
	return mcp.NewTool(toolGetStatus,
		mcp.WithDescription("Report row counts and database size for an indexed directory"),
		mcp.WithReadOnlyHintAnnotation(true),
		pathParam("Indexed directory"),
	)
}
