package reasoning

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/retrieval"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
)

// Pseudo-actions that do not invoke a tool.
const (
	ActionAnalyze    = "analyze_user_message"
	ActionSynthesize = "synthesize_response"
	ActionError      = "error_handling"
)

// ErrorAnswer replaces the final answer of a failed run.
const ErrorAnswer = "Desculpe, ocorreu um erro durante o processamento. Tente novamente."

var tracer = otel.Tracer("github.com/evcomx/ragcore/internal/reasoning")

// Step is one entry of a reasoning trace.
type Step struct {
	Step       int    `json:"step"`
	Thought    string `json:"thought"`
	Action     string `json:"action"`
	Parameters any    `json:"parameters,omitempty"`
	Result     any    `json:"result,omitempty"`
	Success    bool   `json:"success"`
}

// Result is the outcome of one run.
type Result struct {
	Steps       []Step `json:"steps"`
	FinalAnswer string `json:"finalAnswer"`
}

// Failed reports whether the run ended in an error step.
func (r *Result) Failed() bool {
	return len(r.Steps) > 0 && !r.Steps[len(r.Steps)-1].Success
}

// Request is the input of one run.
type Request struct {
	TenantID       string
	Message        string
	ConversationID string
}

// Executor dispatches a named tool.
type Executor interface {
	Execute(ctx context.Context, name, tenantID string, params tools.Params) (any, error)
}

// Options bounds the data fetched per run.
type Options struct {
	KnowledgeLimit int `koanf:"knowledge_limit"`
	HistoryLimit   int `koanf:"history_limit"`
}

// DefaultOptions returns the limits used by the chat flow.
func DefaultOptions() Options {
	return Options{KnowledgeLimit: 3, HistoryLimit: 5}
}

// Orchestrator runs the pipeline. It holds no per-run state.
type Orchestrator struct {
	exec   Executor
	opts   Options
	logger *logging.Logger
}

// NewOrchestrator creates an orchestrator. Zero limits take the defaults.
func NewOrchestrator(exec Executor, opts Options, logger *logging.Logger) *Orchestrator {
	def := DefaultOptions()
	if opts.KnowledgeLimit <= 0 {
		opts.KnowledgeLimit = def.KnowledgeLimit
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{exec: exec, opts: opts, logger: logger.Named("reasoning")}
}

type run struct {
	o     *Orchestrator
	req   Request
	steps []Step
}

func (r *run) push(s Step) {
	s.Step = len(r.steps) + 1
	r.steps = append(r.steps, s)
}

func (r *run) tool(ctx context.Context, name, thought string, params tools.Params, recorded any) (any, error) {
	out, err := r.o.exec.Execute(ctx, name, r.req.TenantID, params)
	if err != nil {
		return nil, err
	}
	r.push(Step{Thought: thought, Action: name, Parameters: recorded, Result: out, Success: true})
	return out, nil
}

// Run executes the pipeline for req. It never returns an error: failures
// are reported as a final unsuccessful step.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	ctx, span := tracer.Start(ctx, "reasoning.Run")
	defer span.End()
	if req.ConversationID != "" {
		ctx = logging.WithConversationID(ctx, req.ConversationID)
	}
	ctx = tenant.WithID(ctx, req.TenantID)

	r := &run{o: o, req: req}
	answer, err := r.execute(ctx)
	if err != nil {
		r.push(Step{
			Thought: fmt.Sprintf("Erro durante o reasoning: %v", err),
			Action:  ActionError,
			Result:  err.Error(),
			Success: false,
		})
		answer = ErrorAnswer
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn(ctx, "reasoning run failed", zap.Error(err), zap.Int("steps", len(r.steps)))
	}

	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	runsTotal.WithLabelValues(outcome).Inc()
	stepsPerRun.Observe(float64(len(r.steps)))
	span.SetAttributes(
		attribute.Int("reasoning.steps", len(r.steps)),
		attribute.String("reasoning.outcome", outcome),
	)
	o.logger.Debug(ctx, "reasoning run completed", zap.Int("steps", len(r.steps)), zap.String("outcome", outcome))

	return &Result{Steps: r.steps, FinalAnswer: answer}
}

func (r *run) execute(ctx context.Context) (string, error) {
	msg := r.req.Message

	r.push(Step{
		Thought: fmt.Sprintf("Analisando a mensagem do usuário: \"%s\". Preciso entender o que está sendo solicitado e quais ferramentas posso usar para ajudar.", msg),
		Action:  ActionAnalyze,
		Success: true,
	})

	out, err := r.tool(ctx, tools.SearchKnowledgeName,
		fmt.Sprintf("Buscando informações relevantes na base de conhecimento do cliente sobre: \"%s\"", msg),
		tools.Params{"query": msg, "limit": r.o.opts.KnowledgeLimit},
		map[string]any{"query": msg},
	)
	if err != nil {
		return "", err
	}
	knowledge, _ := out.([]retrieval.Result)

	if id := r.req.ConversationID; id != "" {
		_, err := r.tool(ctx, tools.ConversationHistoryName,
			"Verificando histórico da conversa para contexto adicional",
			tools.Params{"conversationId": id, "limit": r.o.opts.HistoryLimit},
			map[string]any{"conversationId": id},
		)
		if err != nil {
			return "", err
		}
	}

	out, err = r.tool(ctx, tools.TenantInfoName,
		"Obtendo informações específicas do cliente para personalizar a resposta",
		tools.Params{}, nil,
	)
	if err != nil {
		return "", err
	}
	profile, _ := out.(*tenant.Profile)

	if expr, ok := DetectCalculation(msg); ok {
		_, err := r.tool(ctx, tools.CalculateName,
			"Detectei um cálculo na mensagem: "+expr,
			tools.Params{"expression": expr},
			map[string]any{"expression": expr},
		)
		if err != nil {
			return "", err
		}
	}

	if key, value, ok := DetectMemory(msg); ok {
		_, err := r.tool(ctx, tools.SaveMemoryName,
			"Salvando informação importante na memória: "+key,
			tools.Params{"key": key, "value": value},
			map[string]any{"key": key, "value": value},
		)
		if err != nil {
			return "", err
		}
	}

	answer := Synthesize(knowledge, profile)
	r.push(Step{
		Thought: "Sintetizando todas as informações coletadas para fornecer uma resposta completa e personalizada",
		Action:  ActionSynthesize,
		Result:  answer,
		Success: true,
	})
	return answer, nil
}

// Synthesize builds the answer fragment from retrieved knowledge and the
// tenant profile. A nil profile omits the client section.
func Synthesize(results []retrieval.Result, profile *tenant.Profile) string {
	var b strings.Builder
	b.WriteString("Baseado na minha análise, ")
	if len(results) > 0 {
		b.WriteString("encontrei informações relevantes na base de conhecimento do cliente. ")
		for i, r := range results {
			fmt.Fprintf(&b, "\n\n**Fonte %d:** %s\n", i+1, r.Document.Title)
			fmt.Fprintf(&b, "**Relevância:** %s%%\n", percent(r.Similarity))
			fmt.Fprintf(&b, "**Informação:** %s", r.Chunk)
		}
	}
	if profile != nil {
		b.WriteString("\n\n**Informações do Cliente:**\n")
		fmt.Fprintf(&b, "- Nome: %s\n", profile.Name)
		fmt.Fprintf(&b, "- Total de conversas: %d\n", profile.ConversationCount)
		fmt.Fprintf(&b, "- Documentos na base: %d", profile.DocumentCount)
	}
	return b.String()
}

func percent(similarity float64) string {
	return fmt.Sprintf("%.1f", similarity*100)
}
