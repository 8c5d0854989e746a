// Package engine exposes the indexing and retrieval operations of agentctx:
// IndexCodebase, ResetIndex, FindRelevantDocuments, FindRelevantResources,
// Prepare and Status.
//
// An Engine is built once from an opened store and a resolved embedding
// backend and is safe for concurrent use. Indexing the same directory twice at
// the same time is refused with ErrIndexingInProgress.
package engine
