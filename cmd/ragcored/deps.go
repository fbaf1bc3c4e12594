package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/config"
	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/memory/chromem"
	"github.com/evcomx/ragcore/internal/redact"
	"github.com/evcomx/ragcore/internal/services"
	"github.com/evcomx/ragcore/internal/storage"
	"github.com/evcomx/ragcore/internal/telemetry"
)

// dependencies holds everything run needs, in the order it was opened.
type dependencies struct {
	logger     *logging.Logger
	telemetry  *telemetry.Telemetry
	backend    storage.Backend
	vectorizer *embeddings.Vectorizer
	chromem    *chromem.Store
	registry   services.Registry
}

func initDependencies(ctx context.Context, cfg *config.Config) (_ *dependencies, err error) {
	deps := &dependencies{}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	// ============================================================================
	// Logging and telemetry
	// ============================================================================
	// The global provider delegates to the OTLP provider telemetry.New installs.
	deps.logger, err = logging.NewLogger(&cfg.Logging, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	deps.telemetry, err = telemetry.New(ctx, &cfg.Telemetry, deps.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// ============================================================================
	// Storage
	// ============================================================================
	deps.backend, err = storage.Open(ctx, cfg.StorageOptions(), deps.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	// ============================================================================
	// Embeddings
	// ============================================================================
	primary, perr := embeddings.NewProvider(cfg.EmbeddingProvider())
	if perr != nil {
		// The vectorizer still works on the local fallback.
		deps.logger.Warn(ctx, "embedding provider unavailable, using local vectors",
			zap.String("provider", cfg.Embeddings.Provider),
			zap.Error(perr),
		)
		primary = nil
	}
	deps.vectorizer, err = embeddings.NewVectorizer(primary, cfg.VectorizerOptions(), deps.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vectorizer: %w", err)
	}

	// ============================================================================
	// Optional backends
	// ============================================================================
	var memories memory.Store
	if cfg.Memory.Backend == config.MemoryBackendChromem {
		deps.chromem, err = chromem.New(cfg.Memory.Chromem, deps.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem memory store: %w", err)
		}
		memories = deps.chromem
	}

	completer, err := chat.NewCompleter(cfg.Completer())
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completer: %w", err)
	}

	// ============================================================================
	// Services
	// ============================================================================
	deps.registry, err = services.NewRegistry(ctx, services.Options{
		Backend:           deps.backend,
		Embedder:          deps.vectorizer,
		Memories:          memories,
		Redactor:          redact.New(cfg.Ingest.RedactSecrets, deps.logger),
		Completer:         completer,
		Chunking:          cfg.Chunking,
		Threshold:         cfg.Retrieval.Threshold,
		Reasoning:         cfg.Reasoning,
		DefaultTemplate:   cfg.Prompt.DefaultTemplate,
		DefaultTenantName: cfg.Prompt.FallbackTenantName,
		Logger:            deps.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create services: %w", err)
	}
	return deps, nil
}

// Close releases dependencies in reverse order of creation.
func (d *dependencies) Close() error {
	var errs []error
	if d.chromem != nil {
		errs = append(errs, d.chromem.Close())
	}
	if d.vectorizer != nil {
		errs = append(errs, d.vectorizer.Close())
	}
	if d.backend != nil {
		errs = append(errs, d.backend.Close())
	}
	if d.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, d.telemetry.Shutdown(ctx))
		cancel()
	}
	if d.logger != nil {
		_ = d.logger.Sync()
	}
	return errors.Join(errs...)
}
