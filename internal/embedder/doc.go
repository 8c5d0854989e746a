// Package embedder turns text into fixed-length vectors.
//
// Two backends implement Embedder:
//   - openai: the OpenAI embeddings API (text-embedding-3-small by default)
//   - local-model: a local inference server speaking the OpenAI-compatible
//     /v1/embeddings protocol, such as llama.cpp or ollama
//
// New resolves a Config into exactly one backend. It is called once at startup
// and the result is injected wherever embeddings are needed:
//
//	backend, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    apiKey,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    return err // unknown provider or missing key
//	}
//
// # Adapter
//
// Adapter is what the indexing pipeline and retrieval use. Embed normalizes a
// query and embeds it; EmbedBatch chunks file content and embeds every chunk:
//
//	adapter := embedder.NewAdapter(backend, chunker.New(logger), 0, logger)
//	batch, err := adapter.EmbedBatch(ctx, content, "src/app.ts")
//	for _, c := range batch.Chunks {
//	    fmt.Println(c.StartLine, len(c.Embedding))
//	}
//
// Vectors are paired with chunks by position. A backend that returns fewer
// vectors than it was sent yields only the paired prefix; batch.Dropped()
// reports the rest.
//
// # Retries
//
// Remote calls retry rate limits and 5xx responses with exponential backoff
// (github.com/cenkalti/backoff/v4). Other errors fail immediately.
package embedder
