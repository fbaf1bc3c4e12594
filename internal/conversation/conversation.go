// Package conversation stores tenant chat threads and their messages.
package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist for the tenant.
var ErrNotFound = errors.New("conversation not found")

// NoMessagesPreview is the list preview of an empty conversation.
const NoMessagesPreview = "Nenhuma mensagem"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Conversation is one chat thread of a tenant.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary is a conversation as shown in listings.
type Summary struct {
	Conversation
	Preview      string `json:"preview"`
	MessageCount int    `json:"messageCount"`
}

// Thread is a conversation with all of its messages, oldest first.
type Thread struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Store persists conversations. Every read is scoped by tenant.
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	// GetConversation returns ErrNotFound when id does not belong to tenantID.
	GetConversation(ctx context.Context, tenantID, id string) (*Conversation, error)
	// ListConversations returns the tenant's conversations, newest first.
	ListConversations(ctx context.Context, tenantID string) ([]Summary, error)
	AppendMessage(ctx context.Context, m *Message) error
	// RecentMessages returns at most limit of the newest messages of the
	// conversation, oldest first. A non-positive limit returns all of them.
	RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error)
}
