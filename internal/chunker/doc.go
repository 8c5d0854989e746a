// Package chunker splits file content into syntactically meaningful chunks for embedding.
//
// # Basic Usage
//
//	c := chunker.New(logger)
//	for _, chunk := range c.Chunk(ctx, content, "src/app.ts") {
//	    fmt.Printf("%s:%d-%d\n", chunk.FilePath, chunk.StartLine, chunk.EndLine)
//	}
//
// # Structural Chunking
//
// Languages with a registered parser are parsed into a syntax tree:
//   - TypeScript, TSX, JavaScript, Python, Rust, Java: tree-sitter grammars
//   - Go: go/parser, declarations with their doc comments
//   - Markdown (.md, .mdx, .mdc): goldmark, nested heading sections
//
// The tree is walked top-down. A node whose kind is chunkable for its language
// (function, class, method, interface, type alias, export, import and similar)
// and that spans fewer than MaxChunkLines lines becomes one chunk. Larger nodes
// are searched for smaller chunkable descendants. A large chunkable node without
// any is emitted whole rather than split or dropped.
// Variable declarations and imports are chunkable only at module level; inside
// a function body they are ordinary statements.
//
// Structural chunk content is always an exact slice of the input and line
// numbers are 1-based and inclusive.
//
// # Fallback
//
// When no parser is registered, parsing fails, or parsing yields no chunks:
//
//  1. Content containing "--> statement-breakpoint" is split on the marker.
//     N markers give N+1 chunks with zero line numbers.
//  2. Otherwise blank lines are dropped and the remaining lines are grouped
//     into chunks of at most DefaultWordBudget words (a single longer line
//     stays whole).
//
// Parser errors and panics are logged and never returned to the caller.
package chunker
