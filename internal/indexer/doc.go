// Package indexer keeps the stored embeddings of a directory tree in sync with
// its files.
//
// Every file discovered by Walk passes through the same state machine:
//
//	NEW        no row for the path yet: embed, then insert owner and embeddings
//	UNCHANGED  stored content hash matches: no writes
//	CHANGED    hash differs: embed, then replace the owner's embeddings and
//	           update its hash in one transaction
//
// Files with a .md, .mdx, .mdc or .txt extension are stored as documents,
// everything else as resources. The two kinds use separate tables but follow
// the same rules.
//
// Files are processed concurrently, bounded by Config.Workers, and each file
// runs under its own deadline. A file that fails is logged, counted and
// skipped; the rest of the run continues. Rows of files that no longer exist
// are removed at the end of a run unless Config.KeepDeleted is set.
//
// # Basic Usage
//
//	adapter := embedder.NewAdapter(backend, chunker.New(logger), 0, logger)
//	idx := indexer.New(store, adapter, logger, indexer.Config{Workers: 8})
//
//	paths, stats, err := idx.IndexProject(ctx, "/path/to/project")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("indexed %d, unchanged %d, failed %d\n",
//	    stats.FilesIndexed+stats.FilesUpdated, stats.FilesUnchanged, stats.FilesFailed)
//
// IndexLock lets a long-running server refuse a second concurrent run for the
// same root.
package indexer
