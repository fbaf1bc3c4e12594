// Package tools is the fixed catalogue of named operations the reasoning
// pipeline, the HTTP API and the MCP server invoke on behalf of a tenant.
//
// Every tool exposes a name, a description, a parameter schema and an
// Execute method. The Registry owns dispatch: it validates the tenant,
// opens a span, records duration and wraps failures in *ExecutionError so
// callers can discriminate with errors.Is(err, ErrToolExecution) while
// still reaching the underlying cause (for example validation.ErrInvalid).
package tools
