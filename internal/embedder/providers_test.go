package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		Multiplier:      2,
	}
}

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// embeddingsServer answers OpenAI-compatible embedding requests. Vectors are
// returned in reverse index order to exercise re-ordering. failFirst makes the
// first n requests fail with the given status.
func embeddingsServer(t *testing.T, dim int, failFirst int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if n <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"try again","type":"server_error"}}`)
			return
		}

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[i%dim] = float64(len(req.Input[i]))
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		}))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIProvider_GenerateBatch(t *testing.T) {
	srv, calls := embeddingsServer(t, 4, 0, 0)

	p, err := NewOpenAIProvider("sk-test", "", srv.URL+"/v1/", 4, fastRetry())
	require.NoError(t, err)

	vecs, err := p.GenerateBatch(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 2, 0, 0}, vecs[1])
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_RetriesRateLimit(t *testing.T) {
	srv, calls := embeddingsServer(t, 4, 2, http.StatusTooManyRequests)

	p, err := NewOpenAIProvider("sk-test", "", srv.URL+"/v1/", 4, fastRetry())
	require.NoError(t, err)

	vec, err := p.GenerateEmbedding(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0, 0, 0}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProvider_BadRequestIsPermanent(t *testing.T) {
	srv, calls := embeddingsServer(t, 4, 10, http.StatusBadRequest)

	p, err := NewOpenAIProvider("sk-test", "", srv.URL+"/v1/", 4, fastRetry())
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_DimensionMismatch(t *testing.T) {
	srv, _ := embeddingsServer(t, 3, 0, 0)

	p, err := NewOpenAIProvider("sk-test", "", srv.URL+"/v1/", 4, fastRetry())
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestOpenAIProvider_Validation(t *testing.T) {
	p, err := NewOpenAIProvider("sk-test", "", "http://127.0.0.1:0/v1/", 4, fastRetry())
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.GenerateBatch(context.Background(), []string{"ok", " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.GenerateBatch(context.Background(), make([]string, MaxBatchSize+1))
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestLocalProvider_GenerateBatch(t *testing.T) {
	srv, calls := embeddingsServer(t, 2, 0, 0)

	p, err := NewLocalProvider(srv.URL+"/v1", "nomic", 2, true, fastRetry())
	require.NoError(t, err)

	vecs, err := p.GenerateBatch(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	// vectors are normalized to unit length
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocalProvider_Sequential(t *testing.T) {
	srv, calls := embeddingsServer(t, 2, 0, 0)

	p, err := NewLocalProvider(srv.URL+"/v1", "nomic", 2, false, fastRetry())
	require.NoError(t, err)

	vecs, err := p.GenerateBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLocalProvider_RetriesServerError(t *testing.T) {
	srv, calls := embeddingsServer(t, 2, 1, http.StatusServiceUnavailable)

	p, err := NewLocalProvider(srv.URL+"/v1", "nomic", 2, true, fastRetry())
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, NormalizeVector([]float32{3, 4}))
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b", NormalizeText(`a\nb`))
	assert.Equal(t, "a\nb", NormalizeText("a\nb"))
}
