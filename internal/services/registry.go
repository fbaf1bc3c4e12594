package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/chunker"
	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/retrieval"
	"github.com/evcomx/ragcore/internal/storage"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
)

// Embedder turns text into vectors for both ingestion and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// Redactor scrubs secrets from stored text.
type Redactor interface {
	Redact(ctx context.Context, text string) string
}

// Registry provides access to all ragcore services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Knowledge() *knowledge.Service
	Retrieval() *retrieval.Engine
	Memory() *memory.Service
	Tenants() *tenant.Service
	Conversations() *conversation.Service
	Prompts() *prompt.Builder
	Tools() *tools.Registry
	Reasoner() *reasoning.Orchestrator
	Enhancer() *reasoning.Enhancer
	Chat() *chat.Service
	Backend() storage.Backend
}

// Options configures the registry. Backend and Embedder are required.
type Options struct {
	Backend  storage.Backend
	Embedder Embedder
	// Memories overrides the backend as the long-term memory store.
	Memories memory.Store
	Redactor Redactor
	// Completer writes chat replies; nil uses chat.ContextCompleter.
	Completer chat.Completer
	// WebSearch backs the web_search tool; nil uses the stub.
	WebSearch tools.WebSearcher
	// Chunking defaults to chunker.DefaultOptions when zero.
	Chunking chunker.Options
	// Threshold is the minimum retrieval similarity.
	Threshold float64
	Reasoning reasoning.Options
	// DefaultTemplate is written as the system_chatbot template when the
	// store has none. Empty skips seeding.
	DefaultTemplate   string
	DefaultTenantName string
	Logger            *logging.Logger
}

// registry is the concrete implementation of Registry.
type registry struct {
	knowledge     *knowledge.Service
	retrieval     *retrieval.Engine
	memory        *memory.Service
	tenants       *tenant.Service
	conversations *conversation.Service
	prompts       *prompt.Builder
	tools         *tools.Registry
	reasoner      *reasoning.Orchestrator
	enhancer      *reasoning.Enhancer
	chat          *chat.Service
	backend       storage.Backend
}

// NewRegistry wires every service over one backend.
func NewRegistry(ctx context.Context, opts Options) (Registry, error) {
	if opts.Backend == nil {
		return nil, errors.New("services: backend is required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("services: embedder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if opts.Chunking == (chunker.Options{}) {
		opts.Chunking = chunker.DefaultOptions()
	}
	ch, err := chunker.New(opts.Chunking)
	if err != nil {
		return nil, fmt.Errorf("services: chunker: %w", err)
	}

	var knowledgeOpts []knowledge.Option
	var memoryOpts []memory.Option
	if opts.Redactor != nil {
		knowledgeOpts = append(knowledgeOpts, knowledge.WithRedactor(opts.Redactor))
		memoryOpts = append(memoryOpts, memory.WithRedactor(opts.Redactor))
	}
	knowledgeOpts = append(knowledgeOpts, knowledge.WithLogger(logger))
	memoryOpts = append(memoryOpts, memory.WithLogger(logger))

	memStore := opts.Memories
	if memStore == nil {
		memStore = opts.Backend
	}

	r := &registry{backend: opts.Backend}
	r.knowledge = knowledge.NewService(opts.Backend, ch, opts.Embedder, knowledgeOpts...)
	r.retrieval = retrieval.NewEngine(opts.Backend, opts.Embedder, logger)
	if opts.Threshold > 0 {
		r.retrieval = r.retrieval.WithThreshold(opts.Threshold)
	}
	r.memory = memory.NewService(memStore, memoryOpts...)
	r.tenants = tenant.NewService(opts.Backend, tenant.WithMemories(r.memory))
	r.conversations = conversation.NewService(opts.Backend, logger)
	r.prompts = prompt.NewBuilder(opts.Backend, r.tenants, opts.DefaultTenantName)

	r.tools = tools.NewRegistry(logger)
	err = tools.NewDefaultRegistry(tools.Dependencies{
		Knowledge: r.retrieval,
		History:   r.conversations,
		Profiles:  r.tenants,
		Memory:    r.memory,
		WebSearch: opts.WebSearch,
	}, r.tools)
	if err != nil {
		return nil, fmt.Errorf("services: registering tools: %w", err)
	}

	r.reasoner = reasoning.NewOrchestrator(r.tools, opts.Reasoning, logger)
	r.enhancer = reasoning.NewEnhancer(r.retrieval, opts.Reasoning.KnowledgeLimit, logger)
	r.chat = chat.NewService(r.conversations, r.prompts, r.reasoner, r.enhancer, opts.Completer, logger)

	if opts.DefaultTemplate != "" {
		wrote, err := prompt.EnsureTemplate(ctx, opts.Backend, prompt.SystemChatbot, opts.DefaultTemplate)
		if err != nil {
			return nil, fmt.Errorf("services: default template: %w", err)
		}
		if wrote {
			logger.Info(ctx, "seeded default system template", zap.String("key", prompt.SystemChatbot))
		}
	}

	logger.Debug(ctx, "services wired",
		zap.Int("tools", r.tools.Count()),
		zap.Bool("custom_memory_store", opts.Memories != nil),
	)
	return r, nil
}

func (r *registry) Knowledge() *knowledge.Service        { return r.knowledge }
func (r *registry) Retrieval() *retrieval.Engine         { return r.retrieval }
func (r *registry) Memory() *memory.Service              { return r.memory }
func (r *registry) Tenants() *tenant.Service             { return r.tenants }
func (r *registry) Conversations() *conversation.Service { return r.conversations }
func (r *registry) Prompts() *prompt.Builder             { return r.prompts }
func (r *registry) Tools() *tools.Registry               { return r.tools }
func (r *registry) Reasoner() *reasoning.Orchestrator    { return r.reasoner }
func (r *registry) Enhancer() *reasoning.Enhancer        { return r.enhancer }
func (r *registry) Chat() *chat.Service                  { return r.chat }
func (r *registry) Backend() storage.Backend             { return r.backend }
