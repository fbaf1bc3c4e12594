package tools

import (
	"context"
	"errors"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/retrieval"
	"github.com/evcomx/ragcore/internal/tenant"
)

// Tool names.
const (
	SearchKnowledgeName     = "search_knowledge"
	ConversationHistoryName = "get_conversation_history"
	TenantInfoName          = "get_tenant_info"
	SaveMemoryName          = "save_memory"
	GetMemoryName           = "get_memory"
	CalculateName           = "calculate"
	WebSearchName           = "web_search"
)

const (
	defaultSearchLimit  = 3
	defaultHistoryLimit = 10
)

// Searcher ranks a tenant's knowledge.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string, limit int) ([]retrieval.Result, error)
}

// HistoryReader returns recent conversation messages, oldest first.
type HistoryReader interface {
	History(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error)
}

// ProfileReader returns tenant profiles.
type ProfileReader interface {
	Profile(ctx context.Context, tenantID string) (*tenant.Profile, error)
}

// MemoryStore reads and writes long-term memories.
type MemoryStore interface {
	Save(ctx context.Context, tenantID, key, value string) (*memory.Entry, error)
	Get(ctx context.Context, tenantID, key string) (*memory.Entry, error)
}

// WebSearcher looks a query up outside the tenant's knowledge.
type WebSearcher interface {
	Search(ctx context.Context, query string) (*WebResults, error)
}

// Dependencies are the collaborators of the built-in tools. A nil
// WebSearch uses StubWebSearcher.
type Dependencies struct {
	Knowledge Searcher
	History   HistoryReader
	Profiles  ProfileReader
	Memory    MemoryStore
	WebSearch WebSearcher
}

// NewDefaultRegistry registers the seven built-in tools in catalogue order.
func NewDefaultRegistry(deps Dependencies, r *Registry) error {
	if deps.WebSearch == nil {
		deps.WebSearch = StubWebSearcher{}
	}
	for _, t := range []Tool{
		&SearchKnowledge{search: deps.Knowledge},
		&ConversationHistory{history: deps.History},
		&TenantInfo{profiles: deps.Profiles},
		&SaveMemory{memory: deps.Memory},
		&GetMemory{memory: deps.Memory},
		Calculate{},
		&WebSearch{searcher: deps.WebSearch},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// SearchKnowledge wraps the retrieval engine.
type SearchKnowledge struct{ search Searcher }

func (*SearchKnowledge) Name() string { return SearchKnowledgeName }
func (*SearchKnowledge) Description() string {
	return "Busca informações na base de conhecimento do cliente"
}
func (*SearchKnowledge) Category() Category { return CategoryKnowledge }
func (*SearchKnowledge) Parameters() Schema {
	return Schema{
		"query": {Type: "string", Description: "Pergunta ou termo de busca", Required: true},
		"limit": {Type: "number", Description: "Número máximo de resultados", Default: defaultSearchLimit},
	}
}

func (t *SearchKnowledge) Execute(ctx context.Context, tenantID string, params Params) (any, error) {
	query, err := params.RequiredString("query")
	if err != nil {
		return nil, err
	}
	limit, err := params.Int("limit", defaultSearchLimit)
	if err != nil {
		return nil, err
	}
	return t.search.Search(ctx, query, tenantID, limit)
}

// ConversationHistory returns the newest messages of a conversation.
type ConversationHistory struct{ history HistoryReader }

func (*ConversationHistory) Name() string        { return ConversationHistoryName }
func (*ConversationHistory) Description() string { return "Obtém histórico de conversas anteriores" }
func (*ConversationHistory) Category() Category  { return CategoryConversation }
func (*ConversationHistory) Parameters() Schema {
	return Schema{
		"conversationId": {Type: "string", Description: "ID da conversa", Required: true},
		"limit":          {Type: "number", Description: "Número máximo de mensagens", Default: defaultHistoryLimit},
	}
}

func (t *ConversationHistory) Execute(ctx context.Context, tenantID string, params Params) (any, error) {
	id, err := params.RequiredString("conversationId")
	if err != nil {
		return nil, err
	}
	limit, err := params.Int("limit", defaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	return t.history.History(ctx, tenantID, id, limit)
}

// TenantInfo returns the tenant profile, or nil for an unknown tenant.
type TenantInfo struct{ profiles ProfileReader }

func (*TenantInfo) Name() string        { return TenantInfoName }
func (*TenantInfo) Description() string { return "Obtém informações específicas do cliente/tenant" }
func (*TenantInfo) Category() Category  { return CategoryTenant }
func (*TenantInfo) Parameters() Schema  { return Schema{} }

func (t *TenantInfo) Execute(ctx context.Context, tenantID string, _ Params) (any, error) {
	p, err := t.profiles.Profile(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		return (*tenant.Profile)(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SaveMemory upserts a long-term memory.
type SaveMemory struct{ memory MemoryStore }

func (*SaveMemory) Name() string { return SaveMemoryName }
func (*SaveMemory) Description() string {
	return "Salva uma informação importante na memória de longo prazo"
}
func (*SaveMemory) Category() Category { return CategoryMemory }
func (*SaveMemory) Parameters() Schema {
	return Schema{
		"key":   {Type: "string", Description: "Chave da informação", Required: true},
		"value": {Type: "string", Description: "Valor da informação", Required: true},
	}
}

func (t *SaveMemory) Execute(ctx context.Context, tenantID string, params Params) (any, error) {
	key, err := params.RequiredString("key")
	if err != nil {
		return nil, err
	}
	value, err := params.RequiredString("value")
	if err != nil {
		return nil, err
	}
	return t.memory.Save(ctx, tenantID, key, value)
}

// GetMemory returns a memory value, or nil when the key is absent.
type GetMemory struct{ memory MemoryStore }

func (*GetMemory) Name() string        { return GetMemoryName }
func (*GetMemory) Description() string { return "Recupera informações da memória de longo prazo" }
func (*GetMemory) Category() Category  { return CategoryMemory }
func (*GetMemory) Parameters() Schema {
	return Schema{
		"key": {Type: "string", Description: "Chave da informação", Required: true},
	}
}

func (t *GetMemory) Execute(ctx context.Context, tenantID string, params Params) (any, error) {
	key, err := params.RequiredString("key")
	if err != nil {
		return nil, err
	}
	e, err := t.memory.Get(ctx, tenantID, key)
	if errors.Is(err, memory.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// CalcResult is the output of calculate.
type CalcResult struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// Calculate evaluates restricted arithmetic with Eval.
type Calculate struct{}

func (Calculate) Name() string        { return CalculateName }
func (Calculate) Description() string { return "Executa cálculos matemáticos simples" }
func (Calculate) Category() Category  { return CategoryUtility }
func (Calculate) Parameters() Schema {
	return Schema{
		"expression": {Type: "string", Description: "Expressão matemática (ex: 2+2, 10*5)", Required: true},
	}
}

func (Calculate) Execute(_ context.Context, _ string, params Params) (any, error) {
	expr, err := params.RequiredString("expression")
	if err != nil {
		return nil, err
	}
	v, err := Eval(expr)
	if err != nil {
		return nil, err
	}
	return CalcResult{Expression: expr, Result: v}, nil
}

// WebResult is one web hit.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WebResults is the output of web_search.
type WebResults struct {
	Query   string      `json:"query"`
	Results []WebResult `json:"results"`
}

// StubWebSearcher answers every query with one placeholder hit.
type StubWebSearcher struct{}

func (StubWebSearcher) Search(_ context.Context, query string) (*WebResults, error) {
	return &WebResults{
		Query: query,
		Results: []WebResult{{
			Title:   "Resultado para: " + query,
			Snippet: "Informação encontrada na web...",
			URL:     "https://example.com",
		}},
	}, nil
}

// WebSearch delegates to a WebSearcher.
type WebSearch struct{ searcher WebSearcher }

func (*WebSearch) Name() string        { return WebSearchName }
func (*WebSearch) Description() string { return "Busca informações na web (simulado)" }
func (*WebSearch) Category() Category  { return CategoryUtility }
func (*WebSearch) Parameters() Schema {
	return Schema{
		"query": {Type: "string", Description: "Termo de busca", Required: true},
	}
}

func (t *WebSearch) Execute(ctx context.Context, _ string, params Params) (any, error) {
	query, err := params.RequiredString("query")
	if err != nil {
		return nil, err
	}
	return t.searcher.Search(ctx, query)
}
