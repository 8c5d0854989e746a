// Package embeddertest provides a deterministic in-memory embedding backend for tests.
package embeddertest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/dshills/agentctx/internal/embedder"
)

// DefaultDimension is the vector length used by New when none is given
const DefaultDimension = 64

// Embedder hashes words into buckets, so texts sharing words get similar vectors.
// Fixed vectors can be pinned per text, and the backend can be told to fail or
// to return fewer vectors than requested.
type Embedder struct {
	mu        sync.Mutex
	dimension int
	fixed     map[string][]float32
	failOn    map[string]error

	// Truncate caps the number of vectors returned per batch when positive
	Truncate int

	// Err is returned from every call when set
	Err error

	calls      int
	batchCalls int
	texts      []string
}

// New creates a fake backend with the given dimension
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension: dimension,
		fixed:     make(map[string][]float32),
		failOn:    make(map[string]error),
	}
}

// Pin makes text embed to vec
func (e *Embedder) Pin(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixed[text] = vec
}

// FailWhen makes any batch containing a text with the given substring fail with err
func (e *Embedder) FailWhen(substr string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn[substr] = err
}

// Calls returns the number of GenerateEmbedding calls
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// BatchCalls returns the number of GenerateBatch calls
func (e *Embedder) BatchCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchCalls
}

// Texts returns every text embedded so far
func (e *Embedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.texts))
	copy(out, e.texts)
	return out
}

func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := embedder.ValidateText(text); err != nil {
		return nil, err
	}
	if err := e.failure(text); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *Embedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batchCalls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := embedder.ValidateBatch(texts, 0); err != nil {
		return nil, err
	}
	for _, text := range texts {
		if err := e.failure(text); err != nil {
			return nil, err
		}
	}

	n := len(texts)
	if e.Truncate > 0 && e.Truncate < n {
		n = e.Truncate
	}

	vecs := make([][]float32, 0, n)
	for _, text := range texts[:n] {
		vecs = append(vecs, e.vector(text))
	}
	return vecs, nil
}

func (e *Embedder) failure(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	for substr, err := range e.failOn {
		if strings.Contains(text, substr) {
			return err
		}
	}
	return nil
}

func (e *Embedder) vector(text string) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)

	if vec, ok := e.fixed[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}

	vec := make([]float32, e.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.dimension)]++
	}
	if len(words) == 0 {
		vec[0] = 1
	}
	return embedder.NormalizeVector(vec)
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Provider() string { return "fake" }

func (e *Embedder) Model() string { return "fake-embedding" }

func (e *Embedder) Close() error { return nil }

// ErrBackend is a convenience error for failure injection
var ErrBackend = errors.New("fake backend failure")
