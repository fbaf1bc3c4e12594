// Package config loads ragcore configuration from an optional YAML file
// overlaid by RAGCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/chunker"
	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory/chromem"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/retrieval"
	"github.com/evcomx/ragcore/internal/storage"
	"github.com/evcomx/ragcore/internal/telemetry"
)

// Config holds the complete ragcore configuration.
type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Storage    StorageConfig     `koanf:"storage"`
	Embeddings EmbeddingsConfig  `koanf:"embeddings"`
	Chunking   chunker.Options   `koanf:"chunking"`
	Retrieval  RetrievalConfig   `koanf:"retrieval"`
	Memory     MemoryConfig      `koanf:"memory"`
	Ingest     IngestConfig      `koanf:"ingest"`
	Reasoning  reasoning.Options `koanf:"reasoning"`
	Prompt     PromptConfig      `koanf:"prompt"`
	Chat       ChatConfig        `koanf:"chat"`
	Logging    logging.Config    `koanf:"logging"`
	Telemetry  telemetry.Config  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	HTTPPort        int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `koanf:"driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN Secret `koanf:"postgres_dsn"`
}

// EmbeddingsConfig selects the primary embedding strategy.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Timeout   Duration `koanf:"timeout"`
	CacheSize int      `koanf:"cache_size"`
	RateLimit float64  `koanf:"rate_limit"`
	Burst     int      `koanf:"burst"`
	Dimension int      `koanf:"dimension"`
}

// RetrievalConfig tunes similarity search.
type RetrievalConfig struct {
	Threshold    float64 `koanf:"threshold"`
	DefaultLimit int     `koanf:"default_limit"`
}

// MemoryConfig selects where long-term memories live.
type MemoryConfig struct {
	// Backend is "store" (the storage backend) or "chromem".
	Backend string         `koanf:"backend"`
	Chromem chromem.Config `koanf:"chromem"`
}

// IngestConfig bounds and scrubs ingested content.
type IngestConfig struct {
	RedactSecrets  bool  `koanf:"redact_secrets"`
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// PromptConfig seeds the system prompt.
type PromptConfig struct {
	DefaultTemplate    string `koanf:"default_template"`
	FallbackTenantName string `koanf:"fallback_tenant_name"`
}

// ChatConfig selects the model that writes chat replies.
type ChatConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float32  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// Memory backends.
const (
	MemoryBackendStore   = "store"
	MemoryBackendChromem = "chromem"
)

// Default returns a configuration that runs fully offline on SQLite.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Driver:     storage.DriverSQLite,
			SQLitePath: "data/ragcore.db",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "local",
			Timeout:   Duration(10 * time.Second),
			CacheSize: 1024,
		},
		Chunking: chunker.DefaultOptions(),
		Retrieval: RetrievalConfig{
			Threshold:    retrieval.DefaultThreshold,
			DefaultLimit: 3,
		},
		Memory: MemoryConfig{
			Backend: MemoryBackendStore,
			Chromem: chromem.Config{Path: "data/memories", Compress: true},
		},
		Ingest: IngestConfig{
			RedactSecrets:  true,
			MaxUploadBytes: 10 << 20,
		},
		Reasoning: reasoning.DefaultOptions(),
		Prompt: PromptConfig{
			DefaultTemplate:    prompt.DefaultSystemTemplate,
			FallbackTenantName: prompt.DefaultTenantName,
		},
		Chat: ChatConfig{
			Provider:    "context",
			Temperature: 0.7,
			Timeout:     Duration(60 * time.Second),
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be 1-65535, got %d", c.Server.HTTPPort))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case storage.DriverMemory:
	case storage.DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case storage.DriverPostgres:
		if !c.Storage.PostgresDSN.IsSet() {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Embeddings.Provider {
	case "local", "openai", "ollama", "tei":
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings.provider %q", c.Embeddings.Provider))
	}
	if c.Embeddings.CacheSize < 0 || c.Embeddings.RateLimit < 0 {
		errs = append(errs, errors.New("embeddings.cache_size and embeddings.rate_limit must not be negative"))
	}

	if err := c.Chunking.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chunking: %w", err))
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.threshold must be within [-1, 1], got %v", c.Retrieval.Threshold))
	}
	if c.Retrieval.DefaultLimit < 1 {
		errs = append(errs, errors.New("retrieval.default_limit must be positive"))
	}

	switch c.Memory.Backend {
	case MemoryBackendStore, MemoryBackendChromem:
	default:
		errs = append(errs, fmt.Errorf("unknown memory.backend %q", c.Memory.Backend))
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("ingest.max_upload_bytes must be positive"))
	}
	if c.Reasoning.KnowledgeLimit < 1 || c.Reasoning.HistoryLimit < 1 {
		errs = append(errs, errors.New("reasoning limits must be positive"))
	}

	switch strings.ToLower(c.Chat.Provider) {
	case "context", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown chat.provider %q", c.Chat.Provider))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}

// StorageOptions returns the settings storage.Open expects.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN.Value(),
	}
}

// EmbeddingProvider returns the primary provider settings.
func (c *Config) EmbeddingProvider() embeddings.ProviderConfig {
	return embeddings.ProviderConfig{
		Provider:    c.Embeddings.Provider,
		Model:       c.Embeddings.Model,
		BaseURL:     c.Embeddings.BaseURL,
		APIKey:      c.Embeddings.APIKey.Value(),
		Dimension:   c.Embeddings.Dimension,
		HTTPTimeout: c.Embeddings.Timeout.Duration(),
	}
}

// VectorizerOptions returns the fallback vectorizer bounds.
func (c *Config) VectorizerOptions() embeddings.VectorizerOptions {
	return embeddings.VectorizerOptions{
		Timeout:   c.Embeddings.Timeout.Duration(),
		CacheSize: c.Embeddings.CacheSize,
		RateLimit: c.Embeddings.RateLimit,
		Burst:     c.Embeddings.Burst,
	}
}

// Completer returns the chat completer settings.
func (c *Config) Completer() chat.CompleterConfig {
	return chat.CompleterConfig{
		Provider:    c.Chat.Provider,
		Model:       c.Chat.Model,
		BaseURL:     c.Chat.BaseURL,
		APIKey:      c.Chat.APIKey.Value(),
		Temperature: c.Chat.Temperature,
		Timeout:     c.Chat.Timeout.Duration(),
	}
}
