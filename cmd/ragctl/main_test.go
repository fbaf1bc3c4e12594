package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorded is one request seen by the fake server.
type recorded struct {
	Method string
	Path   string
	Query  string
	Tenant string
	Body   []byte
	Header http.Header
}

func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var seen []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Tenant: r.Header.Get(headerTenantID),
			Body:   body,
			Header: r.Header.Clone(),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RAGCORE_TENANT", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, `{"status":"ok"}`)

	out, err := execute(t, "--server", srv.URL, "health")
	require.NoError(t, err)
	assert.Equal(t, "Server status: ok\n", out)
	require.Len(t, *seen, 1)
	assert.Equal(t, "/health", (*seen)[0].Path)
	assert.Empty(t, (*seen)[0].Tenant)
}

func TestTenantRequired(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, `{}`)

	_, err := execute(t, "--server", srv.URL, "search", "pilates")
	assert.ErrorIs(t, err, errNoTenant)
	assert.Empty(t, *seen)
}

func TestSearch(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, `{"results":[
		{"document":{"id":"d1","title":"Modalidades"},"chunk":"Pilates às terças","similarity":0.61}
	]}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "search", "--limit", "2", "aulas", "de", "pilates")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Modalidades (0.61)")
	assert.Contains(t, out, "Pilates às terças")

	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/v1/retrieve", req.Path)
	assert.Equal(t, "acme", req.Tenant)
	assert.JSONEq(t, `{"query":"aulas de pilates","limit":2}`, string(req.Body))
}

func TestSearch_NoResults(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `{"results":[]}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "search", "nada")
	require.NoError(t, err)
	assert.Equal(t, "No results\n", out)
}

func TestServerError(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusNotFound, `{"error":"tenant not found"}`)

	_, err := execute(t, "--server", srv.URL, "--tenant", "ghost", "tenant")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "tenant not found", apiErr.Message)
}

func TestIngest_Text(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusCreated, `{"success":true,"documentId":"doc-1","chunks":2}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme",
		"ingest", "--title", "Horários", "--text", "Abrimos às 8h", "--type", "manual")
	require.NoError(t, err)
	assert.Equal(t, "Stored document doc-1 in 2 chunks\n", out)

	req := (*seen)[0]
	assert.Equal(t, "/api/v1/knowledge", req.Path)
	assert.JSONEq(t, `{"title":"Horários","content":"Abrimos às 8h","type":"manual"}`, string(req.Body))
}

func TestIngest_Upload(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusCreated, `{"success":true,"documentId":"doc-2","chunks":1}`)
	path := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("# FAQ\nAbrimos às 8h."), 0o600))

	_, err := execute(t, "--server", srv.URL, "--tenant", "acme", "ingest", path)
	require.NoError(t, err)

	req := (*seen)[0]
	assert.Equal(t, "/api/v1/knowledge/upload", req.Path)
	assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data")
	assert.Contains(t, string(req.Body), `filename="faq.md"`)
	assert.Contains(t, string(req.Body), "Abrimos às 8h.")
	assert.NotContains(t, string(req.Body), `name="title"`, "empty fields are not sent")
}

func TestIngest_NeedsContent(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusCreated, `{}`)

	_, err := execute(t, "--server", srv.URL, "--tenant", "acme", "ingest")
	assert.ErrorContains(t, err, "pass a file or --text")
}

func TestChat(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK,
		`{"reply":"Olá!","conversationId":"c1","conversationTitle":"Nova conversa"}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "chat", "--conversation", "c1", "oi")
	require.NoError(t, err)
	assert.Contains(t, out, "Olá!")
	assert.Contains(t, out, "[conversation c1: Nova conversa]")
	assert.JSONEq(t, `{"message":"oi","conversationId":"c1"}`, string((*seen)[0].Body))
}

func TestReason(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `{"finalAnswer":"x","formatted":"Step 1: search_knowledge"}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "reason", "quanto custa?")
	require.NoError(t, err)
	assert.Equal(t, "Step 1: search_knowledge\n", out)
}

func TestMemorySet(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, `{"key":"horario","value":"8h"}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "memory", "set", "horario", "seg", "a", "sex")
	require.NoError(t, err)

	req := (*seen)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/v1/memory/horario", req.Path)
	assert.JSONEq(t, `{"value":"seg a sex"}`, string(req.Body))

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "horario", got["key"])
}

func TestMemorySearch(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK,
		`{"memories":[{"key":"cor","value":"azul","similarity":0.71}]}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "memory", "search", "cor", "favorita", "--limit", "2")
	require.NoError(t, err)
	assert.Equal(t, "cor = azul (0.71)\n", out)

	req := (*seen)[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/v1/memory", req.Path)
	assert.Equal(t, "limit=2&q=cor+favorita", req.Query)
	assert.Equal(t, "acme", req.Tenant)
}

func TestMemorySearch_NoResults(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `{"memories":[]}`)

	out, err := execute(t, "--server", srv.URL, "--tenant", "acme", "memory", "search", "cor")
	require.NoError(t, err)
	assert.Equal(t, "No memories\n", out)
}

func TestTools_Search(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK,
		`{"matches":[{"tool":{"name":"save_memory"},"score":2,"matchReason":"description"}]}`)

	out, err := execute(t, "--server", srv.URL, "tools", "-q", "memória")
	require.NoError(t, err)
	assert.Contains(t, out, "save_memory")
	assert.Contains(t, out, "description")
	assert.Equal(t, "q=mem%C3%B3ria", (*seen)[0].Query)
}

func TestToolsRun(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, `{"tool":"calculate","result":2.5}`)

	_, err := execute(t, "--server", srv.URL, "--tenant", "acme",
		"tools", "run", "calculate", "--params", `{"expression":"10/4"}`)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/tools/calculate", (*seen)[0].Path)
	assert.JSONEq(t, `{"expression":"10/4"}`, string((*seen)[0].Body))

	_, err = execute(t, "--server", srv.URL, "--tenant", "acme", "tools", "run", "calculate", "--params", "{")
	assert.ErrorContains(t, err, "invalid --params")
}

func TestSeed_Sample(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ragcore.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
storage:
  driver: sqlite
  sqlite_path: `+filepath.Join(dir, "ragcore.db")+`
logging:
  level: error
`), 0o600))

	out, err := execute(t, "seed", "--config", cfgPath, "--sample")
	require.NoError(t, err)
	assert.Equal(t, "Seeded 1 templates, 2 tenants, 2 overrides, 2 documents, 1 memories, 3 conversations (0 skipped)\n", out)

	out, err = execute(t, "seed", "--config", cfgPath, "--sample")
	require.NoError(t, err)
	assert.Contains(t, out, "(5 skipped)")
}

func TestSeed_NeedsInput(t *testing.T) {
	_, err := execute(t, "seed")
	assert.ErrorContains(t, err, "pass a seed file or --sample")
}
