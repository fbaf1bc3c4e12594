// Package chat assembles one chat turn: conversation bookkeeping, system
// prompt, reasoning, knowledge context and the language-model reply.
package chat

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/reasoning"
	"github.com/evcomx/ragcore/internal/validation"
)

// HistoryLimit is the number of stored messages sent to the model.
const HistoryLimit = 10

const finalInstructions = "Use as informações do reasoning acima para fornecer uma resposta completa e personalizada. Se o reasoning já forneceu uma resposta adequada, use-a como base e melhore-a."

var tracer = otel.Tracer("github.com/evcomx/ragcore/internal/chat")

// Conversations is the conversation bookkeeping used by a turn.
type Conversations interface {
	GetOrCreate(ctx context.Context, tenantID, id string) (*conversation.Conversation, error)
	Append(ctx context.Context, tenantID, conversationID string, role conversation.Role, text string) (*conversation.Message, error)
	History(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error)
}

// PromptBuilder renders the tenant system prompt.
type PromptBuilder interface {
	Build(ctx context.Context, tenantID string) (string, error)
}

// Reasoner runs the reasoning pipeline.
type Reasoner interface {
	Run(ctx context.Context, req reasoning.Request) *reasoning.Result
}

// PromptEnhancer appends knowledge context to a prompt.
type PromptEnhancer interface {
	EnhancePrompt(ctx context.Context, base, message, tenantID string) string
}

// Request is one user turn.
type Request struct {
	TenantID       string `json:"-"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Response is the outcome of a turn.
type Response struct {
	Reply             string           `json:"reply"`
	ConversationID    string           `json:"conversationId"`
	ConversationTitle string           `json:"conversationTitle"`
	Steps             []reasoning.Step `json:"steps"`
}

// Service runs chat turns.
type Service struct {
	conversations Conversations
	prompts       PromptBuilder
	reasoner      Reasoner
	enhancer      PromptEnhancer
	completer     Completer
	logger        *logging.Logger
}

// NewService wires a chat service. A nil completer uses ContextCompleter.
func NewService(
	conversations Conversations,
	prompts PromptBuilder,
	reasoner Reasoner,
	enhancer PromptEnhancer,
	completer Completer,
	logger *logging.Logger,
) *Service {
	if completer == nil {
		completer = ContextCompleter{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		conversations: conversations,
		prompts:       prompts,
		reasoner:      reasoner,
		enhancer:      enhancer,
		completer:     completer,
		logger:        logger.Named("chat"),
	}
}

// Chat runs one turn. An unknown conversation ID is
// conversation.ErrNotFound. A failing completer degrades to the reasoning
// answer.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "chat.Chat")
	defer span.End()

	if strings.TrimSpace(req.Message) == "" {
		return nil, validation.New("message", "is required")
	}

	conv, err := s.conversations.GetOrCreate(ctx, req.TenantID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithConversationID(ctx, conv.ID)

	system, err := s.prompts.Build(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	result := s.reasoner.Run(ctx, reasoning.Request{
		TenantID:       req.TenantID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})

	enhanced := s.enhancer.EnhancePrompt(ctx, system, req.Message, req.TenantID)

	if _, err := s.conversations.Append(ctx, req.TenantID, conv.ID, conversation.RoleUser, req.Message); err != nil {
		return nil, err
	}

	history, err := s.conversations.History(ctx, req.TenantID, conv.ID, HistoryLimit)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, Message{Role: conversation.RoleSystem, Content: FinalPrompt(enhanced, result)})
	for _, m := range history {
		if m.Role == conversation.RoleSystem {
			continue
		}
		msgs = append(msgs, Message{Role: m.Role, Content: m.Text})
	}

	reply, err := s.completer.Complete(ctx, CompletionRequest{Messages: msgs, Reasoning: result})
	if err != nil {
		s.logger.Warn(ctx, "completer failed, answering with reasoning",
			zap.String("completer", s.completer.Name()),
			zap.Error(err),
		)
		reply = result.FinalAnswer
	}

	if _, err := s.conversations.Append(ctx, req.TenantID, conv.ID, conversation.RoleAssistant, reply); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "chat turn completed",
		zap.Int("steps", len(result.Steps)),
		zap.Int("history", len(history)),
	)
	return &Response{
		Reply:             reply,
		ConversationID:    conv.ID,
		ConversationTitle: conv.Title,
		Steps:             result.Steps,
	}, nil
}

// FinalPrompt combines the enhanced system prompt with the reasoning trace
// and answer.
func FinalPrompt(enhanced string, result *reasoning.Result) string {
	var b strings.Builder
	b.WriteString(enhanced)
	b.WriteString("\n\n## REASONING EXECUTADO:\n")
	b.WriteString(reasoning.FormatTrace(result.Steps))
	b.WriteString("\n\n## RESPOSTA BASEADA NO REASONING:\n")
	b.WriteString(result.FinalAnswer)
	b.WriteString("\n\n## INSTRUÇÕES FINAIS:\n")
	b.WriteString(finalInstructions)
	return b.String()
}
