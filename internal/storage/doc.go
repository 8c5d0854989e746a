// Package storage persists indexed projects and their embeddings.
//
// Two backends implement the Storage interface:
//   - SQLiteStorage (default): vectors are little-endian float32 BLOBs and
//     cosine similarity is computed in Go
//   - PostgresStorage: vectors live in pgvector columns with HNSW cosine
//     indexes and ranking happens in SQL
//
// # Database Schema
//
// Tables:
//   - projects: one row per indexed root directory
//   - resources: source files of a project with their content hash
//   - documents: documentation files (.md, .mdx, .mdc, .txt) of a project
//   - embeddings: chunks of a resource with their vectors
//   - document_embeddings: chunks of a document with their vectors
//
// Deleting a project cascades to its resources and documents, and deleting a
// resource or document cascades to its embeddings.
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, storage.Config{Path: "/var/lib/agentctx/index.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	project, err := store.GetOrCreateProject(ctx, "/path/to/repo")
//
//	err = storage.WithTx(ctx, store, func(tx storage.Tx) error {
//	    owner := &storage.Owner{ProjectID: project.ID, Kind: storage.KindResource, FilePath: "main.go", ContentHash: hash}
//	    if err := tx.InsertOwner(ctx, owner); err != nil {
//	        return err
//	    }
//	    return tx.InsertEmbeddings(ctx, storage.KindResource, owner.ID, rows)
//	})
//
//	results, err := store.SearchEmbeddings(ctx, storage.KindResource, queryVector, storage.SearchParams{
//	    Limit:     4,
//	    Threshold: 0.5,
//	    ProjectID: project.ID,
//	})
//
// # Schema Versions
//
// Migrations are recorded in schema_version with semantic versions and are
// applied in order on open. Each migration runs in its own transaction.
//
// # Build Modes
//
// The default build uses the pure Go driver modernc.org/sqlite. Building with
// -tags sqlite_cgo switches to github.com/mattn/go-sqlite3.
package storage
