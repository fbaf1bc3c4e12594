package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	ollama "github.com/ollama/ollama/api"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaProvider calls a local Ollama server's /api/embed endpoint.
type OllamaProvider struct {
	client    *ollama.Client
	model     string
	dimension int
}

// NewOllamaProvider creates a provider for cfg.BaseURL.
func NewOllamaProvider(cfg ProviderConfig) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama url: %v", ErrInvalidConfig, err)
	}
	return &OllamaProvider{
		client:    ollama.NewClient(u, &http.Client{Timeout: cfg.HTTPTimeout}),
		model:     cfg.Model,
		dimension: resolveDimension(cfg),
	}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Dimension() int { return p.dimension }

func (p *OllamaProvider) Close() error { return nil }

func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	res, err := p.client.Embed(ctx, &ollama.EmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrVectorization, err)
	}
	if err := checkBatch(res.Embeddings, len(texts)); err != nil {
		return nil, err
	}
	return res.Embeddings, nil
}
