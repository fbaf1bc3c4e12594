package http

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/retrieval"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
	"github.com/evcomx/ragcore/internal/validation"
)

// HeaderTenantID carries the caller's tenant.
const HeaderTenantID = "X-Tenant-Id"

// tenantMiddleware resolves the tenant from the header, falling back to
// the tenant query parameter, and rejects requests without a valid one.
func tenantMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(HeaderTenantID))
		if id == "" {
			id = strings.TrimSpace(c.QueryParam("tenant"))
		}
		if err := tenant.ValidateID(id); err != nil {
			return err
		}
		req := c.Request()
		c.SetRequest(req.WithContext(tenant.WithID(req.Context(), id)))
		return next(c)
	}
}

func tenantID(c echo.Context) string {
	id, _ := tenant.FromContext(c.Request().Context())
	return id
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return validation.New("body", "invalid JSON")
	}
	return nil
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.svc.Health != nil {
		if err := s.svc.Health.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// IngestResponse is the body of a successful ingest.
type IngestResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

func (s *Server) ingest(c echo.Context, req knowledge.IngestRequest) error {
	req.TenantID = tenantID(c)
	res, err := s.svc.Knowledge.Ingest(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, IngestResponse{Success: true, DocumentID: res.DocumentID, Chunks: res.Chunks})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req knowledge.IngestRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return s.ingest(c, req)
}

// handleUpload ingests a multipart "file" as UTF-8 text. The title
// defaults to the file name and the type to one inferred from the
// extension.
func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return validation.New("file", "is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return err
	}
	if !utf8.Valid(data) {
		return validation.New("file", "must be UTF-8 text")
	}

	req := knowledge.IngestRequest{
		Title:   c.FormValue("title"),
		Content: string(data),
		Type:    knowledge.DocumentType(c.FormValue("type")),
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = fh.Filename
	}
	if req.Type == "" {
		req.Type = typeFromName(fh.Filename)
	}
	return s.ingest(c, req)
}

func typeFromName(name string) knowledge.DocumentType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return knowledge.TypeMarkdown
	case ".pdf":
		return knowledge.TypePDF
	case ".txt", ".text":
		return knowledge.TypeText
	case ".html", ".htm":
		return knowledge.TypeWebsite
	default:
		return knowledge.TypeManual
	}
}

func (s *Server) handleListKnowledge(c echo.Context) error {
	docs, err := s.svc.Knowledge.List(c.Request().Context(), tenantID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

// RetrieveRequest is the body of POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Query) == "" {
		return validation.New("query", "is required")
	}
	if req.Limit < 0 {
		return validation.New("limit", "must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = s.config.DefaultLimit
	}
	results, err := s.svc.Retriever.Search(c.Request().Context(), req.Query, tenantID(c), req.Limit)
	if err != nil {
		return err
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// MessageRequest is the body of the reason and chat endpoints.
type MessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// ReasonResponse is the body of POST /api/v1/reason.
type ReasonResponse struct {
	Steps       []reasoning.Step `json:"steps"`
	FinalAnswer string           `json:"finalAnswer"`
	Formatted   string           `json:"formatted"`
}

func (s *Server) handleReason(c echo.Context) error {
	var req MessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return validation.New("message", "is required")
	}
	ctx := logging.WithConversationID(c.Request().Context(), req.ConversationID)
	res := s.svc.Reasoner.Run(ctx, reasoning.Request{
		TenantID:       tenantID(c),
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	return c.JSON(http.StatusOK, ReasonResponse{
		Steps:       res.Steps,
		FinalAnswer: res.FinalAnswer,
		Formatted:   reasoning.FormatTrace(res.Steps),
	})
}

func (s *Server) handleChat(c echo.Context) error {
	var req MessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := logging.WithConversationID(c.Request().Context(), req.ConversationID)
	res, err := s.svc.Chat.Chat(ctx, chat.Request{
		TenantID:       tenantID(c),
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListConversations(c echo.Context) error {
	list, err := s.svc.Conversations.List(c.Request().Context(), tenantID(c))
	if err != nil {
		return err
	}
	if list == nil {
		list = []conversation.Summary{}
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": list})
}

func (s *Server) handleGetConversation(c echo.Context) error {
	thread, err := s.svc.Conversations.Get(c.Request().Context(), tenantID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, thread)
}

// MemoryRequest is the body of PUT /api/v1/memory/:key.
type MemoryRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutMemory(c echo.Context) error {
	var req MemoryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	e, err := s.svc.Memories.Save(c.Request().Context(), tenantID(c), c.Param("key"), req.Value)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) handleGetMemory(c echo.Context) error {
	e, err := s.svc.Memories.Get(c.Request().Context(), tenantID(c), c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) handleSearchMemory(c echo.Context) error {
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return validation.New("limit", "must be an integer")
		}
		limit = n
	}
	matches, err := s.svc.Memories.Search(c.Request().Context(), tenantID(c), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"memories": matches})
}

// TenantResponse is the body of GET /api/v1/tenant.
type TenantResponse struct {
	*tenant.Profile
	SystemPrompt string `json:"systemPrompt"`
}

func (s *Server) handleTenant(c echo.Context) error {
	ctx := c.Request().Context()
	id := tenantID(c)
	profile, err := s.svc.Tenants.Profile(ctx, id)
	if err != nil {
		return err
	}
	sys, err := s.svc.Prompts.Build(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TenantResponse{Profile: profile, SystemPrompt: sys})
}

// handleListTools returns the catalogue, or search matches when q is set.
func (s *Server) handleListTools(c echo.Context) error {
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		matches := s.svc.Tools.Search(q)
		if matches == nil {
			matches = []tools.SearchResult{}
		}
		return c.JSON(http.StatusOK, map[string]any{"matches": matches})
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": s.svc.Tools.Descriptors()})
}

// ToolResponse is the body of POST /api/v1/tools/:name.
type ToolResponse struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

func (s *Server) handleExecuteTool(c echo.Context) error {
	params := tools.Params{}
	if c.Request().ContentLength != 0 {
		// Bind would also copy the :name path parameter into the map.
		if err := c.Echo().JSONSerializer.Deserialize(c, &params); err != nil {
			return validation.New("body", "invalid JSON")
		}
	}
	name := c.Param("name")
	res, err := s.svc.Tools.Execute(c.Request().Context(), name, tenantID(c), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToolResponse{Tool: name, Result: res})
}
