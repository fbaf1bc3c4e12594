// Package mcp serves the engine over the Model Context Protocol using
// github.com/modelcontextprotocol/go-sdk/mcp.
//
// Every tool in the built-in catalogue is exposed with its own parameter
// schema plus a tenant_id argument. The server also offers ingest_document,
// reason, chat and tool_search. A configured default tenant makes tenant_id
// optional, which suits a single-tenant stdio session.
package mcp
