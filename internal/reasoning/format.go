package reasoning

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/retrieval"
)

// FormatTrace renders steps as a user-facing markdown list.
func FormatTrace(steps []Step) string {
	var b strings.Builder
	b.WriteString("🧠 **Processo de Raciocínio:**\n\n")
	for _, s := range steps {
		fmt.Fprintf(&b, "**Passo %d:** %s\n", s.Step, s.Thought)
		if s.Action != ActionAnalyze && s.Action != ActionSynthesize {
			fmt.Fprintf(&b, "🔧 **Ação:** %s\n", s.Action)
		}
		if s.Success {
			b.WriteString("✅ **Status:** Sucesso\n")
		} else {
			b.WriteString("❌ **Status:** Erro\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Searcher ranks a tenant's knowledge.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string, limit int) ([]retrieval.Result, error)
}

// Enhancer appends retrieved knowledge to system prompts.
type Enhancer struct {
	search Searcher
	limit  int
	logger *logging.Logger
}

// NewEnhancer creates an Enhancer retrieving up to limit documents.
func NewEnhancer(search Searcher, limit int, logger *logging.Logger) *Enhancer {
	if limit <= 0 {
		limit = DefaultOptions().KnowledgeLimit
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Enhancer{search: search, limit: limit, logger: logger.Named("reasoning.enhance")}
}

// EnhancePrompt appends the knowledge relevant to message to base. It
// returns base unchanged when nothing relevant is found or the search
// fails.
func (e *Enhancer) EnhancePrompt(ctx context.Context, base, message, tenantID string) string {
	results, err := e.search.Search(ctx, message, tenantID, e.limit)
	if err != nil {
		e.logger.Warn(ctx, "prompt enrichment skipped", zap.Error(err))
		return base
	}
	if len(results) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## CONTEXTO RELEVANTE DA BASE DE CONHECIMENTO:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n### Documento %d: %s\n", i+1, r.Document.Title)
		fmt.Fprintf(&b, "**Relevância:** %s%%\n", percent(r.Similarity))
		fmt.Fprintf(&b, "**Conteúdo:** %s\n", r.Chunk)
	}
	b.WriteString("\n\n## INSTRUÇÕES:\n")
	b.WriteString("- Use as informações acima para responder de forma mais precisa e específica\n")
	b.WriteString("- Se a pergunta não estiver relacionada ao contexto, responda normalmente\n")
	b.WriteString("- Sempre cite a fonte quando usar informações específicas\n")
	return b.String()
}
