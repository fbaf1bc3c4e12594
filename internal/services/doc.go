// Package services wires the ragcore domain services over one storage
// backend and exposes them through a Registry.
//
// NewRegistry builds knowledge ingestion, retrieval, memory, tenants,
// conversations, prompts, the tool registry, the reasoning orchestrator
// and chat, in dependency order. Both the HTTP server and the MCP server
// are assembled from a Registry.
package services
