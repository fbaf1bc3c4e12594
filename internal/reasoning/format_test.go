package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/retrieval"
)

func TestFormatTrace(t *testing.T) {
	steps := []Step{
		{Step: 1, Thought: "Analisando", Action: ActionAnalyze, Success: true},
		{Step: 2, Thought: "Buscando", Action: "search_knowledge", Success: true},
		{Step: 3, Thought: "Erro", Action: ActionError, Success: false},
	}
	want := "🧠 **Processo de Raciocínio:**\n\n" +
		"**Passo 1:** Analisando\n✅ **Status:** Sucesso\n\n" +
		"**Passo 2:** Buscando\n🔧 **Ação:** search_knowledge\n✅ **Status:** Sucesso\n\n" +
		"**Passo 3:** Erro\n🔧 **Ação:** error_handling\n❌ **Status:** Erro\n\n"
	assert.Equal(t, want, FormatTrace(steps))
}

type stubSearch struct {
	results []retrieval.Result
	err     error
}

func (s stubSearch) Search(context.Context, string, string, int) ([]retrieval.Result, error) {
	return s.results, s.err
}

func TestEnhancePrompt(t *testing.T) {
	ctx := context.Background()
	base := "Você é um assistente."

	e := NewEnhancer(stubSearch{}, 3, nil)
	assert.Equal(t, base, e.EnhancePrompt(ctx, base, "oi", "acme"))

	e = NewEnhancer(stubSearch{err: errors.New("boom")}, 3, nil)
	assert.Equal(t, base, e.EnhancePrompt(ctx, base, "oi", "acme"))

	e = NewEnhancer(stubSearch{results: []retrieval.Result{
		{Document: knowledge.DocumentSummary{Title: "FAQ"}, Chunk: "Abrimos às 9h.", Similarity: 0.5},
	}}, 3, nil)
	want := base +
		"\n\n## CONTEXTO RELEVANTE DA BASE DE CONHECIMENTO:\n" +
		"\n### Documento 1: FAQ\n**Relevância:** 50.0%\n**Conteúdo:** Abrimos às 9h.\n" +
		"\n\n## INSTRUÇÕES:\n" +
		"- Use as informações acima para responder de forma mais precisa e específica\n" +
		"- Se a pergunta não estiver relacionada ao contexto, responda normalmente\n" +
		"- Sempre cite a fonte quando usar informações específicas\n"
	assert.Equal(t, want, e.EnhancePrompt(ctx, base, "horario", "acme"))
}
