// Package types provides shared type definitions for agentctx.
//
// Chunk is the unit the chunker produces and the embedder vectorises:
//
//	chunk := types.Chunk{
//	    FilePath:  "src/app.ts",
//	    StartLine: 12,
//	    EndLine:   28,
//	    Content:   "export function handler() { ... }",
//	}
//
// EmbeddedChunk attaches the vector returned by the embedding backend.
//
// SearchResult is one ranked row from retrieval. Similarity is
// 1 - cosine distance, so higher values are more relevant:
//
//	results, _ := eng.FindRelevantResources(ctx, "auth middleware", types.SearchOptions{})
//	for _, r := range results {
//	    fmt.Printf("%.2f %s:%d\n", r.Similarity, r.Metadata.FilePath, r.Metadata.StartLine)
//	}
//
// SearchOptions defaults to a limit of 4 rows and a threshold of 0.5.
package types
