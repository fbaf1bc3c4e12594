package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/chat"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
	"github.com/evcomx/ragcore/internal/validation"
)

// Names of the tools served in addition to the built-in catalogue.
const (
	IngestToolName     = "ingest_document"
	ReasonToolName     = "reason"
	ChatToolName       = "chat"
	ToolSearchToolName = "tool_search"
)

const tenantArg = "tenant_id"

// ingest_document
type ingestInput struct {
	TenantID string `json:"tenant_id,omitempty" jsonschema:"Tenant that owns the document"`
	Title    string `json:"title" jsonschema:"Document title"`
	Content  string `json:"content" jsonschema:"Plain-text document body"`
	Type     string `json:"type,omitempty" jsonschema:"One of pdf, txt, md, website or manual (default manual)"`
}

type ingestOutput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the created document"`
	Chunks     int    `json:"chunks" jsonschema:"Number of chunks stored"`
}

// reason and chat
type messageInput struct {
	TenantID       string `json:"tenant_id,omitempty" jsonschema:"Tenant the message belongs to"`
	Message        string `json:"message" jsonschema:"User message"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Existing conversation to continue"`
}

type reasonOutput struct {
	FinalAnswer string `json:"final_answer" jsonschema:"Assembled context for the reply"`
	Trace       string `json:"trace" jsonschema:"Human-readable reasoning trace"`
	Steps       int    `json:"steps" jsonschema:"Number of steps executed"`
	Failed      bool   `json:"failed" jsonschema:"Whether the run ended in an error step"`
}

type chatOutput struct {
	Reply             string `json:"reply" jsonschema:"Assistant reply"`
	ConversationID    string `json:"conversation_id" jsonschema:"Conversation the turn was stored in"`
	ConversationTitle string `json:"conversation_title" jsonschema:"Title of the conversation"`
}

// tool_search
type toolSearchInput struct {
	Query string `json:"query" jsonschema:"Name, keyword or regular expression to look for"`
}

type toolMatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Score       int    `json:"score"`
	MatchReason string `json:"match_reason"`
}

type toolSearchOutput struct {
	Matches []toolMatch `json:"matches" jsonschema:"Matching tools, best first"`
}

func (s *Server) registerTools() error {
	for _, d := range s.svc.Tools.Descriptors() {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: s.inputSchema(d.Parameters),
		}, s.catalogueHandler(d.Name))
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        IngestToolName,
		Description: "Chunk, embed and store a document in the tenant's knowledge base",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ReasonToolName,
		Description: "Run the tool-orchestrated reasoning pipeline for a message and return its trace",
	}, s.handleReason)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ChatToolName,
		Description: "Run one chat turn, storing both messages in a conversation",
	}, s.handleChat)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchToolName,
		Description: "Find tools by name or description",
	}, s.handleToolSearch)

	s.logger.Debug(context.Background(), "registered MCP tools",
		zap.Int("catalogue", len(s.svc.Tools.Descriptors())),
		zap.Int("extra", 4),
	)
	return nil
}

// inputSchema adds tenant_id to a tool's parameter schema.
func (s *Server) inputSchema(params tools.Schema) map[string]any {
	schema := params.JSONSchema()
	props, _ := schema["properties"].(map[string]any)
	props[tenantArg] = map[string]any{
		"type":        "string",
		"description": "Tenant the call runs for",
	}
	if s.defaultTenant == "" {
		required, _ := schema["required"].([]string)
		schema["required"] = append([]string{tenantArg}, required...)
	}
	return schema
}

// resolveTenant returns id, or the default tenant when id is blank.
func (s *Server) resolveTenant(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.defaultTenant
	}
	if err := tenant.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) catalogueHandler(name string) mcp.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		done := s.metrics.track(ctx, name)
		res, err := s.runCatalogueTool(ctx, name, args)
		done(err)
		if err != nil {
			s.logger.Warn(ctx, "MCP tool failed", zap.String("tool", name), zap.Error(err))
			return nil, nil, err
		}
		text, err := renderText(res)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil, nil
	}
}

func (s *Server) runCatalogueTool(ctx context.Context, name string, args map[string]any) (any, error) {
	params := make(tools.Params, len(args))
	var rawTenant string
	for k, v := range args {
		if k == tenantArg {
			str, ok := v.(string)
			if !ok && v != nil {
				return nil, validation.New(tenantArg, "must be a string")
			}
			rawTenant = str
			continue
		}
		params[k] = v
	}
	tenantID, err := s.resolveTenant(rawTenant)
	if err != nil {
		return nil, err
	}
	return s.svc.Tools.Execute(ctx, name, tenantID, params)
}

func renderText(v any) (string, error) {
	if str, ok := v.(string); ok {
		return str, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(b), nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, args ingestInput) (*mcp.CallToolResult, ingestOutput, error) {
	done := s.metrics.track(ctx, IngestToolName)
	tenantID, err := s.resolveTenant(args.TenantID)
	if err != nil {
		done(err)
		return nil, ingestOutput{}, err
	}
	res, err := s.svc.Knowledge.Ingest(ctx, knowledge.IngestRequest{
		TenantID: tenantID,
		Title:    args.Title,
		Content:  args.Content,
		Type:     knowledge.DocumentType(args.Type),
	})
	done(err)
	if err != nil {
		return nil, ingestOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Document %s stored in %d chunks", res.DocumentID, res.Chunks)},
		},
	}, ingestOutput{DocumentID: res.DocumentID, Chunks: res.Chunks}, nil
}

func (s *Server) handleReason(ctx context.Context, _ *mcp.CallToolRequest, args messageInput) (*mcp.CallToolResult, reasonOutput, error) {
	done := s.metrics.track(ctx, ReasonToolName)
	tenantID, err := s.resolveTenant(args.TenantID)
	if err == nil && strings.TrimSpace(args.Message) == "" {
		err = validation.New("message", "is required")
	}
	if err != nil {
		done(err)
		return nil, reasonOutput{}, err
	}
	ctx = logging.WithConversationID(ctx, args.ConversationID)
	res := s.svc.Reasoner.Run(ctx, reasoning.Request{
		TenantID:       tenantID,
		Message:        args.Message,
		ConversationID: args.ConversationID,
	})
	done(nil)
	out := reasonOutput{
		FinalAnswer: res.FinalAnswer,
		Trace:       reasoning.FormatTrace(res.Steps),
		Steps:       len(res.Steps),
		Failed:      res.Failed(),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.Trace}},
	}, out, nil
}

func (s *Server) handleChat(ctx context.Context, _ *mcp.CallToolRequest, args messageInput) (*mcp.CallToolResult, chatOutput, error) {
	done := s.metrics.track(ctx, ChatToolName)
	tenantID, err := s.resolveTenant(args.TenantID)
	if err != nil {
		done(err)
		return nil, chatOutput{}, err
	}
	ctx = logging.WithConversationID(ctx, args.ConversationID)
	res, err := s.svc.Chat.Chat(ctx, chat.Request{
		TenantID:       tenantID,
		Message:        args.Message,
		ConversationID: args.ConversationID,
	})
	done(err)
	if err != nil {
		return nil, chatOutput{}, err
	}
	out := chatOutput{
		Reply:             res.Reply,
		ConversationID:    res.ConversationID,
		ConversationTitle: res.ConversationTitle,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Reply}},
	}, out, nil
}

func (s *Server) handleToolSearch(ctx context.Context, _ *mcp.CallToolRequest, args toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
	done := s.metrics.track(ctx, ToolSearchToolName)
	defer done(nil)

	out := toolSearchOutput{Matches: []toolMatch{}}
	for _, m := range s.svc.Tools.Search(strings.TrimSpace(args.Query)) {
		out.Matches = append(out.Matches, toolMatch{
			Name:        m.Tool.Name,
			Description: m.Tool.Description,
			Category:    string(m.Tool.Category),
			Score:       m.Score,
			MatchReason: m.MatchReason,
		})
	}
	return nil, out, nil
}
