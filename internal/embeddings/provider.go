package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrVectorization indicates the provider was unreachable, slow or
	// returned an unusable response.
	ErrVectorization = errors.New("vectorization failed")
)

// Provider generates embeddings from one backend.
type Provider interface {
	// Name identifies the strategy, e.g. "local" or "openai".
	Name() string
	// EmbedDocuments embeds texts in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length, or 0 when the model is unknown.
	Dimension() int
	Close() error
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	// Provider is one of "local", "openai", "ollama" or "tei".
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	// HTTPTimeout bounds a single HTTP exchange; the Vectorizer applies
	// its own, usually shorter, deadline on top.
	HTTPTimeout time.Duration
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalProvider(), nil
	case "openai":
		return NewOpenAIProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	case "tei":
		return NewTEIProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// dimensionForModel returns a known model's vector length or 0.
func dimensionForModel(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "ada-002"):
		return 1536
	case strings.Contains(m, "nomic-embed-text"), strings.Contains(m, "bge-base"):
		return 768
	case strings.Contains(m, "minilm"), strings.Contains(m, "bge-small"):
		return 384
	case strings.Contains(m, "mxbai-embed-large"), strings.Contains(m, "bge-large"):
		return 1024
	default:
		return 0
	}
}

func resolveDimension(cfg ProviderConfig) int {
	if cfg.Dimension > 0 {
		return cfg.Dimension
	}
	return dimensionForModel(cfg.Model)
}

// checkBatch validates a provider response against the request size.
func checkBatch(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", ErrVectorization, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at index %d", ErrVectorization, i)
		}
	}
	return nil
}
