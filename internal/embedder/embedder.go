package embedder

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks github.com/dshills/agentctx/internal/embedder Embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrMissingAPIKey       = errors.New("embedding provider API key not configured")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// Embedder is an embedding backend. Implementations return one vector per input
// text in input order; a backend may return fewer vectors than texts, never more.
type Embedder interface {
	// GenerateEmbedding embeds a single text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch embeds several texts, in one request when the backend allows it
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length produced by the backend
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// NormalizeText collapses literal escaped-newline sequences ("\n" as two
// characters) into spaces before a text is embedded.
func NormalizeText(text string) string {
	return strings.ReplaceAll(text, `\n`, " ")
}

// ValidateText rejects empty or whitespace-only texts
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatch validates every text of a batch against the size limit
func ValidateBatch(texts []string, maxSize int) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	if maxSize > 0 && len(texts) > maxSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(texts), maxSize)
	}

	for i, text := range texts {
		if err := ValidateText(text); err != nil {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}

// checkDimension verifies a vector has the expected length when one is configured
func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// NormalizeVector scales a vector to unit length
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
