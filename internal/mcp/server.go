package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/tools"
)

// Errors returned by NewServer for missing collaborators.
var (
	ErrMissingTools     = errors.New("mcp: tool registry is required")
	ErrMissingKnowledge = errors.New("mcp: knowledge service is required")
	ErrMissingReasoner  = errors.New("mcp: reasoner is required")
	ErrMissingChat      = errors.New("mcp: chat service is required")
)

// Tools lists, searches and runs the built-in tools.
type Tools interface {
	Descriptors() []tools.Descriptor
	Search(query string) []tools.SearchResult
	Execute(ctx context.Context, name, tenantID string, params tools.Params) (any, error)
}

// Knowledge ingests documents.
type Knowledge interface {
	Ingest(ctx context.Context, req knowledge.IngestRequest) (*knowledge.IngestResult, error)
}

// Reasoner runs the tool pipeline for one message.
type Reasoner interface {
	Run(ctx context.Context, req reasoning.Request) *reasoning.Result
}

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Services are the collaborators exposed over MCP. All are required.
type Services struct {
	Tools     Tools
	Knowledge Knowledge
	Reasoner  Reasoner
	Chat      Chatter
}

func (s Services) validate() error {
	switch {
	case s.Tools == nil:
		return ErrMissingTools
	case s.Knowledge == nil:
		return ErrMissingKnowledge
	case s.Reasoner == nil:
		return ErrMissingReasoner
	case s.Chat == nil:
		return ErrMissingChat
	}
	return nil
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ragcore")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// DefaultTenant is used when a call omits tenant_id. Empty makes
	// tenant_id required on every tool.
	DefaultTenant string

	Logger *logging.Logger

	// Meter receives the tool instruments; nil uses the global provider.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ragcore",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// Server exposes the engine's tools over the Model Context Protocol.
type Server struct {
	mcp           *mcp.Server
	svc           Services
	defaultTenant string
	metrics       *Metrics
	logger        *logging.Logger
}

// NewServer creates a server and registers every tool.
func NewServer(cfg *Config, svc Services) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	logger := cfg.Logger
	if logger == nil {
		logger = def.Logger
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:           mcpServer,
		svc:           svc,
		defaultTenant: cfg.DefaultTenant,
		metrics:       NewMetrics(cfg.Meter, logger),
		logger:        logger.Named("mcp"),
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport", zap.String("default_tenant", s.defaultTenant))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// MCPServer returns the underlying SDK server, for custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
