// Package http serves the ragcore JSON API on echo.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/retrieval"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
)

// Knowledge ingests and lists documents.
type Knowledge interface {
	Ingest(ctx context.Context, req knowledge.IngestRequest) (*knowledge.IngestResult, error)
	List(ctx context.Context, tenantID string) ([]knowledge.DocumentSummary, error)
}

// Retriever ranks chunks against a query.
type Retriever interface {
	Search(ctx context.Context, query, tenantID string, limit int) ([]retrieval.Result, error)
}

// Reasoner runs the tool pipeline for one message.
type Reasoner interface {
	Run(ctx context.Context, req reasoning.Request) *reasoning.Result
}

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Conversations lists and loads conversations.
type Conversations interface {
	List(ctx context.Context, tenantID string) ([]conversation.Summary, error)
	Get(ctx context.Context, tenantID, id string) (*conversation.Thread, error)
}

// Memories reads and writes long-term memory.
type Memories interface {
	Save(ctx context.Context, tenantID, key, value string) (*memory.Entry, error)
	Get(ctx context.Context, tenantID, key string) (*memory.Entry, error)
	Search(ctx context.Context, tenantID, query string, limit int) ([]memory.Match, error)
}

// Tenants resolves tenant profiles.
type Tenants interface {
	Profile(ctx context.Context, id string) (*tenant.Profile, error)
}

// Prompts builds a tenant's system prompt.
type Prompts interface {
	Build(ctx context.Context, tenantID string) (string, error)
}

// Tools lists, searches and executes registered tools.
type Tools interface {
	Descriptors() []tools.Descriptor
	Search(query string) []tools.SearchResult
	Execute(ctx context.Context, name, tenantID string, params tools.Params) (any, error)
}

// Pinger reports backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the handlers' dependencies. Every field is required except
// Health.
type Services struct {
	Knowledge     Knowledge
	Retriever     Retriever
	Reasoner      Reasoner
	Chat          Chatter
	Conversations Conversations
	Memories      Memories
	Tenants       Tenants
	Prompts       Prompts
	Tools         Tools
	Health        Pinger
}

func (s Services) validate() error {
	switch {
	case s.Knowledge == nil:
		return fmt.Errorf("knowledge service is required")
	case s.Retriever == nil:
		return fmt.Errorf("retriever is required")
	case s.Reasoner == nil:
		return fmt.Errorf("reasoner is required")
	case s.Chat == nil:
		return fmt.Errorf("chat service is required")
	case s.Conversations == nil:
		return fmt.Errorf("conversation service is required")
	case s.Memories == nil:
		return fmt.Errorf("memory service is required")
	case s.Tenants == nil:
		return fmt.Errorf("tenant service is required")
	case s.Prompts == nil:
		return fmt.Errorf("prompt builder is required")
	case s.Tools == nil:
		return fmt.Errorf("tool registry is required")
	}
	return nil
}

// Config holds HTTP server settings.
type Config struct {
	Host string
	Port int
	// DefaultLimit applies to retrieve requests without a limit.
	DefaultLimit int
	// MaxUploadBytes bounds request bodies, uploads included.
	MaxUploadBytes int64
	// Meter receives the HTTP instruments; nil uses the global provider.
	Meter metric.Meter
}

func (c *Config) withDefaults() *Config {
	out := Config{Host: "localhost", Port: 8080, DefaultLimit: 3, MaxUploadBytes: 10 << 20}
	if c != nil {
		out = *c
	}
	if out.DefaultLimit <= 0 {
		out.DefaultLimit = 3
	}
	if out.MaxUploadBytes <= 0 {
		out.MaxUploadBytes = 10 << 20
	}
	return &out
}

// Server exposes the engine over HTTP.
type Server struct {
	echo   *echo.Echo
	svc    Services
	logger *logging.Logger
	config *Config
}

// NewServer validates svc and registers every route.
func NewServer(svc Services, logger *logging.Logger, cfg *Config) (*Server, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	cfg = cfg.withDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes)))
	e.Use(NewMetrics(cfg.Meter, logger).Middleware())
	e.Use(requestLogger(logger))

	s := &Server{echo: e, svc: svc, logger: logger, config: cfg}
	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request ID in the context and logs each request.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", tenantMiddleware)
	v1.POST("/knowledge", s.handleIngest)
	v1.POST("/knowledge/upload", s.handleUpload)
	v1.GET("/knowledge", s.handleListKnowledge)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/reason", s.handleReason)
	v1.POST("/chat", s.handleChat)
	v1.GET("/conversations", s.handleListConversations)
	v1.GET("/conversations/:id", s.handleGetConversation)
	v1.GET("/memory", s.handleSearchMemory)
	v1.PUT("/memory/:key", s.handlePutMemory)
	v1.GET("/memory/:key", s.handleGetMemory)
	v1.GET("/tenant", s.handleTenant)
	v1.GET("/tools", s.handleListTools)
	v1.POST("/tools/:name", s.handleExecuteTool)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
