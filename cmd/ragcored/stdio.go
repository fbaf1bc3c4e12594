package main

import (
	"context"
	"fmt"

	"github.com/evcomx/ragcore/internal/mcp"
)

// runMCP serves the tool catalogue on stdin/stdout until the client
// disconnects or ctx is cancelled. Logs go to stderr only.
func runMCP(ctx context.Context, deps *dependencies, defaultTenant string) error {
	reg := deps.registry
	srv, err := mcp.NewServer(&mcp.Config{
		Name:          "ragcore",
		Version:       version,
		DefaultTenant: defaultTenant,
		Logger:        deps.logger,
		Meter:         deps.telemetry.Meter("github.com/evcomx/ragcore/internal/mcp"),
	}, mcp.Services{
		Tools:     reg.Tools(),
		Knowledge: reg.Knowledge(),
		Reasoner:  reg.Reasoner(),
		Chat:      reg.Chat(),
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
