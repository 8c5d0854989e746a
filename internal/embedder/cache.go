package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of vectors kept when no size is configured
const DefaultCacheSize = 10000

// Cache provides in-memory LRU caching of vectors keyed by model and text
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the entry
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec
func (c *Cache) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
}

// ComputeHash returns the cache key for a text embedded by model
func ComputeHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// cachedEmbedder serves repeated texts from a Cache and forwards misses
type cachedEmbedder struct {
	Embedder
	cache *Cache
}

// WithCache wraps e so identical texts are embedded once
func WithCache(e Embedder, cache *Cache) Embedder {
	if cache == nil {
		return e
	}
	return &cachedEmbedder{Embedder: e, cache: cache}
}

func (c *cachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := ComputeHash(c.Model(), text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.Embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec)
	return vec, nil
}

// GenerateBatch forwards only the cache misses. When the backend returns fewer
// vectors than requested, the result is cut at the first text left without one.
func (c *cachedEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = ComputeHash(c.Model(), text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vecs, err := c.Embedder.GenerateBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			if j >= len(missIdx) {
				break
			}
			results[missIdx[j]] = vec
			c.cache.Set(keys[missIdx[j]], vec)
		}
	}

	for i, vec := range results {
		if vec == nil {
			return results[:i], nil
		}
	}
	return results, nil
}
