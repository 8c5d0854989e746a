package embedder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/agentctx/pkg/types"
)

// Chunker splits file content into embeddable chunks
type Chunker interface {
	Chunk(ctx context.Context, content, filePath string) []types.Chunk
}

// Batch is the result of embedding one file's chunks
type Batch struct {
	Chunks []types.EmbeddedChunk

	// Requested is the number of chunks sent to the backend
	Requested int
}

// Dropped returns how many chunks were left without a vector by the backend
func (b *Batch) Dropped() int {
	return b.Requested - len(b.Chunks)
}

// Adapter chunks content and embeds the chunks with a backend
type Adapter struct {
	backend   Embedder
	chunker   Chunker
	batchSize int
	logger    *zap.Logger
}

// NewAdapter creates an Adapter. batchSize caps texts per backend request and
// defaults to MaxBatchSize.
func NewAdapter(backend Embedder, chunker Chunker, batchSize int, logger *zap.Logger) *Adapter {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		backend:   backend,
		chunker:   chunker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Backend returns the wrapped embedding backend
func (a *Adapter) Backend() Embedder {
	return a.backend
}

// Embed normalizes text and returns its vector
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	text = NormalizeText(text)
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	return a.backend.GenerateEmbedding(ctx, text)
}

// EmbedBatch chunks content and embeds every chunk
func (a *Adapter) EmbedBatch(ctx context.Context, content, filePath string) (*Batch, error) {
	return a.EmbedChunks(ctx, a.chunker.Chunk(ctx, content, filePath))
}

// EmbedChunks embeds chunks in backend-sized batches and pairs vectors with
// chunks by position. Whitespace-only chunks are skipped. If the backend returns
// fewer vectors than it was sent, the paired prefix is kept and the remaining
// chunks are dropped.
func (a *Adapter) EmbedChunks(ctx context.Context, chunks []types.Chunk) (*Batch, error) {
	pending := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			pending = append(pending, c)
		}
	}

	batch := &Batch{
		Chunks:    make([]types.EmbeddedChunk, 0, len(pending)),
		Requested: len(pending),
	}
	if len(pending) == 0 {
		return batch, nil
	}

	for start := 0; start < len(pending); start += a.batchSize {
		end := min(start+a.batchSize, len(pending))
		texts := make([]string, 0, end-start)
		for _, c := range pending[start:end] {
			texts = append(texts, c.Content)
		}

		vecs, err := a.backend.GenerateBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
		}

		for i := 0; i < len(vecs) && i < len(texts); i++ {
			batch.Chunks = append(batch.Chunks, types.EmbeddedChunk{
				Chunk:     pending[start+i],
				Embedding: vecs[i],
			})
		}

		if len(vecs) < len(texts) {
			break
		}
	}

	if dropped := batch.Dropped(); dropped > 0 {
		a.logger.Warn("embedding backend returned fewer vectors than chunks",
			zap.String("event", "embedder.batch_truncated"),
			zap.String("path", pending[0].FilePath),
			zap.Int("requested", batch.Requested),
			zap.Int("dropped", dropped))
	}

	return batch, nil
}
