package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/evcomx/ragcore/internal/embeddings"
	ragcorehttp "github.com/evcomx/ragcore/internal/http"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/memory/chromem"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/services"
	"github.com/evcomx/ragcore/internal/storage/memstore"
	"github.com/evcomx/ragcore/internal/tenant"
)

const manual = "Nosso horário de atendimento é de segunda a sexta, das nove às dezoito horas. Aos sábados abrimos das nove ao meio-dia."

type testServer struct {
	handler http.Handler
	reg     services.Registry
	logs    *logging.TestLogger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithMemories(t, nil)
}

func newTestServerWithMemories(t *testing.T, memories memory.Store) *testServer {
	t.Helper()
	ctx := context.Background()
	backend := memstore.New()
	vec, err := embeddings.NewVectorizer(embeddings.NewLocalProvider(), embeddings.VectorizerOptions{}, nil)
	require.NoError(t, err)
	logs := logging.NewTestLogger()
	reg, err := services.NewRegistry(ctx, services.Options{
		Backend:         backend,
		Embedder:        vec,
		DefaultTemplate: prompt.DefaultSystemTemplate,
		Logger:          logs.Logger,
		Memories:        memories,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Tenants().Register(ctx, &tenant.Tenant{ID: "acme", Name: "Acme", Plan: "pro"}))

	srv, err := ragcorehttp.NewServer(ragcorehttp.Services{
		Knowledge:     reg.Knowledge(),
		Retriever:     reg.Retrieval(),
		Reasoner:      reg.Reasoner(),
		Chat:          reg.Chat(),
		Conversations: reg.Conversations(),
		Memories:      reg.Memory(),
		Tenants:       reg.Tenants(),
		Prompts:       reg.Prompts(),
		Tools:         reg.Tools(),
		Health:        backend,
	}, logs.Logger, &ragcorehttp.Config{MaxUploadBytes: 1 << 16})
	require.NoError(t, err)
	return &testServer{handler: srv.Handler(), reg: reg, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set(ragcorehttp.HeaderTenantID, tenantID)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := ragcorehttp.NewServer(ragcorehttp.Services{}, logging.NewNop(), nil)
	assert.ErrorContains(t, err, "knowledge service is required")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ragcorehttp.HealthResponse](t, rec).Status)
}

func TestTenantResolution(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/knowledge", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[ragcorehttp.ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/v1/knowledge?tenant=acme", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/knowledge", "bad tenant!", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAndRetrieve(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/knowledge", "acme", map[string]string{
		"title":   "Horário",
		"content": manual,
		"type":    "manual",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ing := decode[ragcorehttp.IngestResponse](t, rec)
	assert.True(t, ing.Success)
	assert.Equal(t, 1, ing.Chunks)

	rec = s.do(t, http.MethodGet, "/api/v1/knowledge", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode[map[string][]map[string]any](t, rec)["documents"]
	require.Len(t, docs, 1)
	assert.Equal(t, ing.DocumentID, docs[0]["id"])

	rec = s.do(t, http.MethodPost, "/api/v1/retrieve", "acme", map[string]any{"query": "horário de atendimento sábados"})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[map[string][]map[string]any](t, rec)["results"]
	require.NotEmpty(t, results)
	assert.Equal(t, manual, results[0]["chunk"])

	rec = s.do(t, http.MethodPost, "/api/v1/retrieve", "other", map[string]any{"query": "horário de atendimento sábados"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string][]map[string]any](t, rec)["results"])
}

func TestIngest_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/knowledge", "acme", map[string]string{"title": "", "content": manual})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/retrieve", "acme", map[string]any{"query": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/retrieve", "acme", map[string]any{"query": "x", "limit": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "faq.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte(manual))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ragcorehttp.HeaderTenantID, "acme")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	docs, err := s.reg.Knowledge().List(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "faq.md", docs[0].Title)
	assert.EqualValues(t, "md", docs[0].Type)
}

func TestUpload_MissingFile(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/upload", strings.NewReader(""))
	req.Header.Set(ragcorehttp.HeaderTenantID, "acme")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReason(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/reason", "acme", map[string]string{"message": "quanto é 2+3*4?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ragcorehttp.ReasonResponse](t, rec)
	assert.NotEmpty(t, res.Steps)
	assert.NotEmpty(t, res.FinalAnswer)
	assert.NotEmpty(t, res.Formatted)

	rec = s.do(t, http.MethodPost, "/api/v1/reason", "acme", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAndConversations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/chat", "acme", map[string]string{"message": "Olá, tudo bem?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[map[string]any](t, rec)
	convID, _ := first["conversationId"].(string)
	require.NotEmpty(t, convID)
	assert.NotEmpty(t, first["reply"])

	rec = s.do(t, http.MethodPost, "/api/v1/chat", "acme", map[string]string{"message": "E amanhã?", "conversationId": convID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, convID, decode[map[string]any](t, rec)["conversationId"])

	rec = s.do(t, http.MethodGet, "/api/v1/conversations", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]map[string]any](t, rec)["conversations"], 1)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID, "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	thread := decode[map[string]any](t, rec)
	assert.Len(t, thread["messages"], 4)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID, "other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/chat", "acme", map[string]string{"message": "oi", "conversationId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemory(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/memory/cor", "acme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/memory/cor", "acme", map[string]string{"value": "azul"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/memory/cor", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "azul", decode[map[string]any](t, rec)["value"])

	rec = s.do(t, http.MethodGet, "/api/v1/memory/cor", "other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemorySearch(t *testing.T) {
	store, err := chromem.New(chromem.Config{}, nil)
	require.NoError(t, err)
	s := newTestServerWithMemories(t, store)

	for key, value := range map[string]string{
		"cor":     "a cor favorita é azul",
		"horario": "reuniões às nove horas",
	} {
		rec := s.do(t, http.MethodPut, "/api/v1/memory/"+key, "acme", map[string]string{"value": value})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/v1/memory?q=cor+favorita&limit=1", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string][]map[string]any](t, rec)
	require.Len(t, body["memories"], 1)
	assert.Equal(t, "cor", body["memories"][0]["key"])

	rec = s.do(t, http.MethodGet, "/api/v1/memory?q=cor", "other", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string][]map[string]any](t, rec)["memories"])

	rec = s.do(t, http.MethodGet, "/api/v1/memory", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/memory?q=cor&limit=x", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemorySearch_Unsupported(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/memory?q=cor", "acme", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestTenantProfile(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tenant", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Acme", body["name"])
	assert.Contains(t, body["systemPrompt"], "Acme")

	rec = s.do(t, http.MethodGet, "/api/v1/tenant", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTools(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tools", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]map[string]any](t, rec)["tools"], 7)

	rec = s.do(t, http.MethodGet, "/api/v1/tools?q=memória", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string][]map[string]any](t, rec)["matches"])

	rec = s.do(t, http.MethodPost, "/api/v1/tools/calculate", "acme", map[string]string{"expression": "10/4"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string]any](t, rec)
	assert.Equal(t, "calculate", out["tool"])
	assert.Equal(t, 2.5, out["result"].(map[string]any)["result"])

	rec = s.do(t, http.MethodPost, "/api/v1/tools/calculate", "acme", map[string]string{"expression": "1/0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/tools/nope", "acme", map[string]string{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestLogging(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/knowledge", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s.logs.AssertLogged(t, zapcore.InfoLevel, "http request")
	s.logs.AssertNotLogged(t, zapcore.ErrorLevel, "request failed")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
