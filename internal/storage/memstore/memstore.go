// Package memstore is an in-process backend for tests and the "memory"
// storage driver. Nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/tenant"
)

type memKey struct{ tenantID, key string }

// Store keeps every record in maps guarded by one mutex. Slices preserve
// insertion order, which is the storage order of chunks and messages.
type Store struct {
	mu        sync.RWMutex
	tenants   map[string]tenant.Tenant
	docs      []knowledge.Document
	chunks    []knowledge.Chunk
	memories  map[memKey]memory.Entry
	convs     []conversation.Conversation
	messages  []conversation.Message
	templates map[string]prompt.Template
	overrides map[memKey]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tenants:   map[string]tenant.Tenant{},
		memories:  map[memKey]memory.Entry{},
		templates: map[string]prompt.Template{},
		overrides: map[memKey]string{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Tenants.

func (s *Store) UpsertTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.tenants[t.ID]; ok && !old.CreatedAt.IsZero() {
		t.CreatedAt = old.CreatedAt
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *Store) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return &t, nil
}

func (s *Store) CountConversations(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.convs {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountDocuments(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.docs {
		if d.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// Knowledge.

func (s *Store) CreateDocument(_ context.Context, doc *knowledge.Document, chunks []knowledge.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ID == doc.ID {
			return fmt.Errorf("document %s already exists", doc.ID)
		}
	}
	for _, c := range chunks {
		if c.DocumentID != doc.ID || c.TenantID != doc.TenantID {
			return fmt.Errorf("chunk %s does not belong to document %s", c.ID, doc.ID)
		}
	}
	s.docs = append(s.docs, *doc)
	for _, c := range chunks {
		c.Vector = append([]float32(nil), c.Vector...)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

func (s *Store) GetDocument(_ context.Context, tenantID, id string) (*knowledge.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.ID == id && d.TenantID == tenantID {
			d := d
			return &d, nil
		}
	}
	return nil, knowledge.ErrNotFound
}

func (s *Store) ListDocuments(_ context.Context, tenantID string) ([]knowledge.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []knowledge.DocumentSummary{}
	for i := len(s.docs) - 1; i >= 0; i-- {
		d := s.docs[i]
		if d.TenantID != tenantID {
			continue
		}
		out = append(out, s.summary(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) summary(d knowledge.Document) knowledge.DocumentSummary {
	n := 0
	for _, c := range s.chunks {
		if c.DocumentID == d.ID {
			n++
		}
	}
	return knowledge.DocumentSummary{
		ID:         d.ID,
		TenantID:   d.TenantID,
		Title:      d.Title,
		Type:       d.Type,
		ChunkCount: n,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (s *Store) ListChunks(_ context.Context, tenantID string) ([]knowledge.ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := map[string]knowledge.DocumentSummary{}
	out := []knowledge.ChunkRecord{}
	for _, c := range s.chunks {
		if c.TenantID != tenantID {
			continue
		}
		sum, ok := docs[c.DocumentID]
		if !ok {
			for _, d := range s.docs {
				if d.ID == c.DocumentID {
					sum = s.summary(d)
					break
				}
			}
			docs[c.DocumentID] = sum
		}
		c.Vector = append([]float32(nil), c.Vector...)
		out = append(out, knowledge.ChunkRecord{Chunk: c, Document: sum})
	}
	return out, nil
}

// Memories.

func (s *Store) SaveMemory(_ context.Context, e *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[memKey{e.TenantID, e.Key}] = *e
	return nil
}

func (s *Store) GetMemory(_ context.Context, tenantID, key string) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.memories[memKey{tenantID, key}]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &e, nil
}

func (s *Store) ListMemories(_ context.Context, tenantID string) ([]memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []memory.Entry{}
	for k, e := range s.memories {
		if k.tenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Conversations.

func (s *Store) CreateConversation(_ context.Context, c *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = append(s.convs, *c)
	return nil
}

func (s *Store) GetConversation(_ context.Context, tenantID, id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversation(tenantID, id)
}

func (s *Store) conversation(tenantID, id string) (*conversation.Conversation, error) {
	for _, c := range s.convs {
		if c.ID == id && c.TenantID == tenantID {
			c := c
			return &c, nil
		}
	}
	return nil, conversation.ErrNotFound
}

func (s *Store) ListConversations(_ context.Context, tenantID string) ([]conversation.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []conversation.Summary{}
	for i := len(s.convs) - 1; i >= 0; i-- {
		c := s.convs[i]
		if c.TenantID != tenantID {
			continue
		}
		sum := conversation.Summary{Conversation: c}
		for _, m := range s.messages {
			if m.ConversationID != c.ID {
				continue
			}
			if sum.MessageCount == 0 {
				sum.Preview = m.Text
			}
			sum.MessageCount++
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, m *conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, c := range s.convs {
		if c.ID == m.ConversationID {
			found = true
			break
		}
	}
	if !found {
		return conversation.ErrNotFound
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *Store) RecentMessages(_ context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.conversation(tenantID, conversationID); err != nil {
		return []conversation.Message{}, nil
	}
	out := []conversation.Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Prompts.

func (s *Store) UpsertTemplate(_ context.Context, t *prompt.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Key] = *t
	return nil
}

func (s *Store) GetTemplate(_ context.Context, key string) (*prompt.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[key]
	if !ok {
		return nil, prompt.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpsertOverride(_ context.Context, tenantID, key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[memKey{tenantID, key}] = content
	return nil
}

func (s *Store) GetOverride(_ context.Context, tenantID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.overrides[memKey{tenantID, key}]
	if !ok {
		return "", prompt.ErrNotFound
	}
	return c, nil
}
