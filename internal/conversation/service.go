package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/validation"
)

const titleLayout = "02/01/2006, 15:04:05"

// Service manages conversations and their history.
type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a conversation service over store.
func NewService(store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, logger: logger.Named("conversation"), now: time.Now}
}

// GetOrCreate returns the conversation with id, or a new one when id is
// empty. An unknown id is ErrNotFound, never a silent new thread.
func (s *Service) GetOrCreate(ctx context.Context, tenantID, id string) (*Conversation, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if id != "" {
		return s.store.GetConversation(ctx, tenantID, id)
	}
	return s.Start(ctx, tenantID, "")
}

// Start creates a conversation with the given title. A blank title gets
// the generated one.
func (s *Service) Start(ctx context.Context, tenantID, title string) (*Conversation, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	now := s.now()
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Nova conversa - " + now.Format(titleLayout)
	}
	c := &Conversation{ID: uuid.NewString(), TenantID: tenantID, Title: title, CreatedAt: now.UTC()}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.logger.Info(ctx, "conversation created", zap.String("conversation_id", c.ID))
	return c, nil
}

// Append stores a message in a conversation owned by tenantID.
func (s *Service) Append(ctx context.Context, tenantID, conversationID string, role Role, text string) (*Message, error) {
	if !role.Valid() {
		return nil, validation.Newf("role", "unknown role %q", role)
	}
	if strings.TrimSpace(text) == "" {
		return nil, validation.New("text", "is required")
	}
	if _, err := s.get(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return m, nil
}

// History returns the newest limit messages, oldest first.
func (s *Service) History(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error) {
	if _, err := s.get(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Message{}, nil
	}
	msgs, err := s.store.RecentMessages(ctx, tenantID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// List returns the tenant's conversations, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]Summary, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	out, err := s.store.ListConversations(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Summary{}
	}
	for i := range out {
		if out[i].MessageCount == 0 {
			out[i].Preview = NoMessagesPreview
		}
	}
	return out, nil
}

// Get returns a conversation with all of its messages.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Thread, error) {
	c, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.RecentMessages(ctx, tenantID, id, 0)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return &Thread{Conversation: *c, Messages: msgs}, nil
}

func (s *Service) get(ctx context.Context, tenantID, id string) (*Conversation, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, validation.New("conversation_id", "is required")
	}
	return s.store.GetConversation(ctx, tenantID, id)
}
