package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	ProviderOpenAI = "openai"

	DefaultOpenAIModel = "text-embedding-3-small"
	OpenAIDimension    = 1536

	// MaxBatchSize bounds the number of texts sent in one request
	MaxBatchSize = 100
)

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	retry     RetryConfig
}

// NewOpenAIProvider creates an OpenAI embedder. An empty model selects
// DefaultOpenAIModel; a non-positive dimension disables length checks.
func NewOpenAIProvider(apiKey, model, baseURL string, dimension int, retry RetryConfig) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are driven by retryWithBackoff
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
		retry:     retry,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrProviderFailed)
	}
	return vecs[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts, MaxBatchSize); err != nil {
		return nil, err
	}

	vecs, err := retryWithBackoff(ctx, o.retry, isRetryableOpenAIError, func() ([][]float32, error) {
		return o.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return vecs, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, err
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, 0, len(data))
	for _, d := range data {
		vec := toFloat32(d.Embedding)
		if err := checkDimension(vec, o.dimension); err != nil {
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

// isRetryableOpenAIError retries rate limits and server errors
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func (o *OpenAIProvider) Dimension() int {
	if o.dimension > 0 {
		return o.dimension
	}
	return OpenAIDimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
