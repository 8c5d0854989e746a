package embedder

import (
	"fmt"
	"strings"
)

// Config selects and configures one embedding backend
type Config struct {
	Provider  string // openai or local-model
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	CacheSize int // 0 disables caching

	// LocalBatch sends arrays of texts to the local server in one request
	LocalBatch bool

	// Retry overrides DefaultRetryConfig when set
	Retry *RetryConfig
}

// New resolves cfg into an Embedder. It reads no environment and has no side
// effects beyond constructing the client, so it is safe to call once at startup
// and inject the result. An unknown provider is reported immediately.
func New(cfg Config) (Embedder, error) {
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Dimension, retry)
	case ProviderLocalModel:
		e, err = NewLocalProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, cfg.LocalBatch, retry)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e = WithCache(e, NewCache(cfg.CacheSize))
	}
	return e, nil
}
