package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/reasoning"
)

// ErrCompletion wraps language-model failures.
var ErrCompletion = errors.New("completion failed")

// Message is one chat message sent to a language model.
type Message struct {
	Role    conversation.Role `json:"role"`
	Content string            `json:"content"`
}

// CompletionRequest carries the assembled prompt of one chat turn.
type CompletionRequest struct {
	// Messages starts with the system prompt and ends with the user turn.
	Messages  []Message
	Reasoning *reasoning.Result
}

// Completer produces the assistant reply.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ContextCompleter answers with the reasoning answer. It needs no model.
type ContextCompleter struct{}

func (ContextCompleter) Name() string { return "context" }

func (ContextCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	if req.Reasoning == nil {
		return "", fmt.Errorf("%w: no reasoning result", ErrCompletion)
	}
	return req.Reasoning.FinalAnswer, nil
}

// CompleterConfig selects and configures a Completer.
type CompleterConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Temperature float32       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// NewCompleter builds the configured Completer. An empty provider is
// "context".
func NewCompleter(cfg CompleterConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "context":
		return ContextCompleter{}, nil
	case "openai":
		return NewOpenAICompleter(cfg)
	case "ollama":
		return NewOllamaCompleter(cfg)
	default:
		return nil, fmt.Errorf("unknown completer provider %q", cfg.Provider)
	}
}

// DefaultOpenAIChatModel is used when no model is configured.
const DefaultOpenAIChatModel = "gpt-4o-mini"

// OpenAICompleter calls an OpenAI-compatible chat completion API.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAICompleter creates an OpenAI completer.
func NewOpenAICompleter(cfg CompleterConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai completer: api_key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIChatModel
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(oc), model: model, temperature: cfg.Temperature}, nil
}

func (c *OpenAICompleter) Name() string { return "openai" }

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

// Ollama defaults.
const (
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultOllamaChatModel = "llama3.2:3b"
)

// OllamaCompleter calls a local Ollama chat endpoint.
type OllamaCompleter struct {
	client *ollama.Client
	model  string
}

// NewOllamaCompleter creates an Ollama completer.
func NewOllamaCompleter(cfg CompleterConfig) (*OllamaCompleter, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base_url %q: %w", base, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaChatModel
	}
	return &OllamaCompleter{
		client: ollama.NewClient(u, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (c *OllamaCompleter) Name() string { return "ollama" }

func (c *OllamaCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollama.Message{Role: string(m.Role), Content: m.Content}
	}
	stream := false
	var out strings.Builder
	err := c.client.Chat(ctx, &ollama.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   &stream,
	}, func(resp ollama.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	return out.String(), nil
}
