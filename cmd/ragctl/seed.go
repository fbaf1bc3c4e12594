package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcomx/ragcore/internal/config"
	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/memory/chromem"
	"github.com/evcomx/ragcore/internal/redact"
	"github.com/evcomx/ragcore/internal/seed"
	"github.com/evcomx/ragcore/internal/services"
	"github.com/evcomx/ragcore/internal/storage"
)

func newSeedCmd() *cobra.Command {
	var (
		configPath string
		sample     bool
	)
	cmd := &cobra.Command{
		Use:   "seed [file.toml]",
		Short: "Load tenants, templates and demo data into storage",
		Long: `Load tenants, prompt templates, documents, memories and conversations
from a TOML file straight into the configured storage backend. The
server does not need to be running.

Re-running is safe: templates, tenants and memories are upserted, and
documents or conversations whose title already exists are skipped.

Examples:
  # Built-in demo tenants
  ragctl seed --sample

  # Custom file against a specific config
  ragctl seed --config ragcore.yaml tenants.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				f   *seed.File
				err error
			)
			switch {
			case sample:
				f, err = seed.Sample()
			case len(args) == 1:
				f, err = seed.Load(args[0])
			default:
				return fmt.Errorf("pass a seed file or --sample")
			}
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			rep, err := runSeed(cmd.Context(), cfg, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Seeded %d templates, %d tenants, %d overrides, %d documents, %d memories, %d conversations (%d skipped)\n",
				rep.Templates, rep.Tenants, rep.Overrides, rep.Documents, rep.Memories, rep.Conversations, rep.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config file (default ragcore.yaml)")
	cmd.Flags().BoolVar(&sample, "sample", false, "load the built-in demo data")
	return cmd
}

// runSeed opens the configured backend and applies f through the same
// services the server uses, so documents are chunked and embedded.
func runSeed(ctx context.Context, cfg *config.Config, f *seed.File) (*seed.Report, error) {
	logger, err := logging.NewLogger(&cfg.Logging, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := storage.Open(ctx, cfg.StorageOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	primary, err := embeddings.NewProvider(cfg.EmbeddingProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	vectorizer, err := embeddings.NewVectorizer(primary, cfg.VectorizerOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vectorizer: %w", err)
	}
	defer vectorizer.Close()

	var memories memory.Store
	if cfg.Memory.Backend == config.MemoryBackendChromem {
		store, err := chromem.New(cfg.Memory.Chromem, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem memory store: %w", err)
		}
		defer store.Close()
		memories = store
	}

	reg, err := services.NewRegistry(ctx, services.Options{
		Backend:           backend,
		Embedder:          vectorizer,
		Memories:          memories,
		Redactor:          redact.New(cfg.Ingest.RedactSecrets, logger),
		Chunking:          cfg.Chunking,
		Threshold:         cfg.Retrieval.Threshold,
		Reasoning:         cfg.Reasoning,
		DefaultTemplate:   cfg.Prompt.DefaultTemplate,
		DefaultTenantName: cfg.Prompt.FallbackTenantName,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create services: %w", err)
	}

	return seed.Apply(ctx, f, seed.Targets{
		Tenants:       reg.Tenants(),
		Prompts:       reg.Backend(),
		Knowledge:     reg.Knowledge(),
		Memories:      reg.Memory(),
		Conversations: reg.Conversations(),
	}, logger)
}
