// Package searcher retrieves stored chunks by cosine similarity to a query.
//
// A query is embedded once (vectors are cached in an LRU keyed by the query
// text) and ranked against the document tables, the resource tables, or both.
// Only rows scoring strictly above the threshold are returned, best first,
// capped at the limit. Zero-valued options select a limit of 4 and a threshold
// of 0.5.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, adapter, 0, logger)
//
//	docs, err := s.SearchDocuments(ctx, "how are migrations applied", types.SearchOptions{})
//
//	both, err := s.SearchBoth(ctx, "retry with backoff", types.SearchOptions{
//	    Limit:      8,
//	    ProjectDir: "/path/to/project",
//	})
//	for _, r := range both.Resources {
//	    fmt.Printf("%s:%d-%d (%.2f)\n", r.Metadata.FilePath, r.Metadata.StartLine, r.Metadata.EndLine, r.Similarity)
//	}
package searcher
