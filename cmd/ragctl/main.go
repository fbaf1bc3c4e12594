// Package main implements ragctl, a command-line client for the ragcored
// HTTP API. The seed command also runs offline against the configured
// storage backend.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version information (set via ldflags during build)
var version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server  string
	tenant  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "CLI for the ragcore retrieval and reasoning engine",
		Long: `ragctl talks to a running ragcored over its HTTP API.

Every tenant-scoped command sends the tenant in the X-Tenant-Id header,
taken from --tenant or RAGCORE_TENANT.

Examples:
  # Store a document for a tenant
  ragctl --tenant acme ingest faq.md

  # Search the knowledge base
  ragctl --tenant acme search "horário de atendimento"

  # Load demo tenants into the configured database
  ragctl seed --sample`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("RAGCORE_SERVER", "http://localhost:8080"), "ragcored server URL")
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", os.Getenv("RAGCORE_TENANT"), "tenant id")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newIngestCmd(opts),
		newDocsCmd(opts),
		newSearchCmd(opts),
		newReasonCmd(opts),
		newChatCmd(opts),
		newConversationsCmd(opts),
		newMemoryCmd(opts),
		newTenantCmd(opts),
		newToolsCmd(opts),
		newSeedCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
