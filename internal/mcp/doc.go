// Package mcp exposes the engine as Model Context Protocol tools over stdio.
//
// Tools:
//   - index_codebase: index every text file under a directory
//   - reset_index: delete a directory's index and embeddings
//   - find_relevant_documents: semantic search over documentation chunks
//   - find_relevant_resources: semantic search over source code chunks
//   - prepare_context: index a directory, then search both tables
//   - get_status: row counts and database size for an indexed directory
//
// Search tools accept "query", plus optional "limit" (default 4) and
// "threshold" (default 0.5). Results are returned as a JSON text block
// ordered by descending similarity:
//
//	{
//	  "query": "retry with backoff",
//	  "results": [
//	    {
//	      "content": "// Do runs fn with exponential backoff\nfunc Do(...",
//	      "metadata": {"file_path": "/src/retry/retry.go", "start_line": 3, "end_line": 6},
//	      "similarity": 0.83
//	    }
//	  ]
//	}
//
// Handler failures are returned as *MCPError values. Codes:
//   - -32602: invalid params
//   - -32603: internal error
//   - -32001: directory not indexed
//   - -32002: indexing in progress for the directory
//   - -32004: embedding provider failure
//
// stdout is reserved for the protocol; the server logs to the zap logger it
// is given, which writes to stderr.
package mcp
