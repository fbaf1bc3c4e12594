package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/services"
	"github.com/evcomx/ragcore/internal/storage/memstore"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
	"github.com/evcomx/ragcore/internal/validation"
)

const manual = "Nosso horário de atendimento é de segunda a sexta, das nove às dezoito horas. Aos sábados abrimos das nove ao meio-dia."

func newTestServer(t *testing.T, defaultTenant string) (*Server, services.Registry) {
	t.Helper()
	ctx := context.Background()
	vec, err := embeddings.NewVectorizer(embeddings.NewLocalProvider(), embeddings.VectorizerOptions{}, nil)
	require.NoError(t, err)
	reg, err := services.NewRegistry(ctx, services.Options{
		Backend:         memstore.New(),
		Embedder:        vec,
		DefaultTemplate: prompt.DefaultSystemTemplate,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Tenants().Register(ctx, &tenant.Tenant{ID: "acme", Name: "Acme"}))

	s, err := NewServer(&Config{DefaultTenant: defaultTenant}, Services{
		Tools:     reg.Tools(),
		Knowledge: reg.Knowledge(),
		Reasoner:  reg.Reasoner(),
		Chat:      reg.Chat(),
	})
	require.NoError(t, err)
	return s, reg
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer(nil, Services{})
	assert.ErrorIs(t, err, ErrMissingTools)
}

func TestInputSchema(t *testing.T) {
	s, _ := newTestServer(t, "")
	schema := s.inputSchema(tools.Calculate{}.Parameters())
	assert.Equal(t, []string{tenantArg, "expression"}, schema["required"])
	assert.Contains(t, schema["properties"], tenantArg)

	s, _ = newTestServer(t, "acme")
	schema = s.inputSchema(tools.Calculate{}.Parameters())
	assert.Equal(t, []string{"expression"}, schema["required"])
}

func TestCatalogueHandler(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestServer(t, "")

	res, _, err := s.catalogueHandler(tools.SaveMemoryName)(ctx, nil, map[string]any{
		"tenant_id": "acme", "key": "cor", "value": "azul",
	})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	e, err := reg.Memory().Get(ctx, "acme", "cor")
	require.NoError(t, err)
	assert.Equal(t, "azul", e.Value)

	res, _, err = s.catalogueHandler(tools.GetMemoryName)(ctx, nil, map[string]any{"tenant_id": "acme", "key": "cor"})
	require.NoError(t, err)
	assert.Equal(t, "azul", res.Content[0].(*mcp.TextContent).Text)

	_, _, err = s.catalogueHandler(tools.CalculateName)(ctx, nil, map[string]any{"expression": "1+1"})
	assert.ErrorIs(t, err, validation.ErrInvalid)

	_, _, err = s.catalogueHandler(tools.CalculateName)(ctx, nil, map[string]any{"tenant_id": 7, "expression": "1+1"})
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestCatalogueHandler_DefaultTenant(t *testing.T) {
	s, _ := newTestServer(t, "acme")
	res, _, err := s.catalogueHandler(tools.CalculateName)(context.Background(), nil, map[string]any{"expression": "6*7"})
	require.NoError(t, err)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "42")
}

func TestHandleIngestAndReason(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestServer(t, "acme")

	_, out, err := s.handleIngest(ctx, nil, ingestInput{Title: "Horário", Content: manual})
	require.NoError(t, err)
	assert.NotEmpty(t, out.DocumentID)
	assert.Equal(t, 1, out.Chunks)

	docs, err := reg.Knowledge().List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, reason, err := s.handleReason(ctx, nil, messageInput{Message: "qual o horário de atendimento?"})
	require.NoError(t, err)
	assert.Positive(t, reason.Steps)
	assert.NotEmpty(t, reason.Trace)
	assert.False(t, reason.Failed)

	_, _, err = s.handleReason(ctx, nil, messageInput{Message: "  "})
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestHandleChat(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestServer(t, "acme")

	_, out, err := s.handleChat(ctx, nil, messageInput{Message: "Olá!"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Reply)
	require.NotEmpty(t, out.ConversationID)

	list, err := reg.Conversations().List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHandleToolSearch(t *testing.T) {
	s, _ := newTestServer(t, "")
	_, out, err := s.handleToolSearch(context.Background(), nil, toolSearchInput{Query: "calculate"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Matches)
	assert.Equal(t, tools.CalculateName, out.Matches[0].Name)
	assert.Equal(t, 3, out.Matches[0].Score)
}

func TestServer_OverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t, "acme")

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	listed, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	assert.Len(t, names, 11)
	assert.Contains(t, names, tools.SearchKnowledgeName)
	assert.Contains(t, names, IngestToolName)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.CalculateName,
		Arguments: map[string]any{"expression": "10/4"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "2.5")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.CalculateName,
		Arguments: map[string]any{"expression": "1/0"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
