// Ragcored serves the multi-tenant retrieval and reasoning engine.
//
// By default it serves the JSON API over HTTP. With --mcp it serves the
// tool catalogue over MCP on stdio instead.
//
// Configuration is read from ragcore.yaml (or --config), then .env, then
// RAGCORE_* environment variables. See internal/config.
//
// Usage:
//
//	# Start the HTTP API with defaults
//	ragcored
//
//	# Serve MCP on stdio for one tenant
//	RAGCORE_TENANT=acme ragcored --mcp
//
//	# Use Postgres
//	RAGCORE_STORAGE_DRIVER=postgres RAGCORE_STORAGE_POSTGRES_DSN=postgres://... ragcored
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/config"
	ragcorehttp "github.com/evcomx/ragcore/internal/http"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	mcp        bool
	tenant     string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to the YAML config file (default ragcore.yaml)")
	flag.BoolVar(&opts.mcp, "mcp", false, "serve MCP on stdio instead of HTTP")
	flag.StringVar(&opts.tenant, "tenant", os.Getenv("RAGCORE_TENANT"), "default tenant for MCP calls without tenant_id")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragcored [--config file] [--mcp] [--tenant id]\n")
			fmt.Fprintf(os.Stderr, "  ragcored version\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "ragcored: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("ragcored\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run loads configuration, wires every dependency and serves until ctx is
// cancelled:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Opens storage, applying migrations
//  4. Creates the vectorizer and optional memory and completion backends
//  5. Wires services and the tool registry
//  6. Serves HTTP, or MCP on stdio
//  7. Shuts down within server.shutdown_timeout
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.mcp {
		// stdout carries the protocol.
		cfg.Logging.Output.Stdout = false
		cfg.Logging.Output.Stderr = true
	}

	deps, err := initDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	logger := deps.logger
	logger.Info(ctx, "starting ragcored",
		zap.String("version", version),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("embeddings", deps.vectorizer.Strategy()),
		zap.String("memory_backend", cfg.Memory.Backend),
		zap.Bool("mcp", opts.mcp),
		zap.Bool("telemetry", deps.telemetry.IsEnabled()),
		zap.Bool("telemetry_degraded", deps.telemetry.Health().Degraded),
	)

	if opts.mcp {
		return runMCP(ctx, deps, opts.tenant)
	}
	return runHTTP(ctx, cfg, deps)
}

func runHTTP(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	reg := deps.registry
	srv, err := ragcorehttp.NewServer(ragcorehttp.Services{
		Knowledge:     reg.Knowledge(),
		Retriever:     reg.Retrieval(),
		Reasoner:      reg.Reasoner(),
		Chat:          reg.Chat(),
		Conversations: reg.Conversations(),
		Memories:      reg.Memory(),
		Tenants:       reg.Tenants(),
		Prompts:       reg.Prompts(),
		Tools:         reg.Tools(),
		Health:        reg.Backend(),
	}, deps.logger, &ragcorehttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.HTTPPort,
		DefaultLimit:   cfg.Retrieval.DefaultLimit,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		Meter:          deps.telemetry.Meter("github.com/evcomx/ragcore/internal/http"),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	deps.logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
