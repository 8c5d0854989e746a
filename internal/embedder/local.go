package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	ProviderLocalModel = "local-model"

	DefaultLocalModelURL  = "http://localhost:8080/v1"
	DefaultLocalModelName = "nomic-embed-text"
	LocalModelDimension   = 768
)

// LocalProvider embeds through a local inference server that exposes the
// OpenAI-compatible /v1/embeddings endpoint (llama.cpp, ollama, LM Studio).
type LocalProvider struct {
	client    *goopenai.Client
	model     string
	dimension int
	batch     bool
	retry     RetryConfig
}

// NewLocalProvider creates a local-model embedder. When batch is false texts are
// embedded one request at a time for servers that reject array inputs.
func NewLocalProvider(baseURL, model string, dimension int, batch bool, retry RetryConfig) (*LocalProvider, error) {
	if baseURL == "" {
		baseURL = DefaultLocalModelURL
	}
	if model == "" {
		model = DefaultLocalModelName
	}

	// local servers ignore the key but the client requires one
	cfg := goopenai.DefaultConfig("local")
	cfg.BaseURL = baseURL

	return &LocalProvider{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
		batch:     batch,
		retry:     retry,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	vecs, err := l.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrProviderFailed)
	}
	return vecs[0], nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts, MaxBatchSize); err != nil {
		return nil, err
	}

	if l.batch {
		return l.request(ctx, texts)
	}

	vecs := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := l.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

func (l *LocalProvider) request(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := retryWithBackoff(ctx, l.retry, isRetryableLocalError, func() ([][]float32, error) {
		return l.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return vecs, nil
}

func (l *LocalProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := l.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(l.model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, 0, len(data))
	for _, d := range data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		if err := checkDimension(vec, l.dimension); err != nil {
			return nil, err
		}
		// local models do not always return unit vectors
		vecs = append(vecs, NormalizeVector(vec))
	}
	return vecs, nil
}

// isRetryableLocalError retries while the server is busy, overloaded or still loading the model
func isRetryableLocalError(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}

func (l *LocalProvider) Dimension() int {
	if l.dimension > 0 {
		return l.dimension
	}
	return LocalModelDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocalModel
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
