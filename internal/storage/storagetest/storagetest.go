// Package storagetest holds the behaviour every storage backend must
// share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/tenant"
)

// Backend is the method set under test.
type Backend interface {
	knowledge.Store
	tenant.Store
	memory.Store
	conversation.Store
	prompt.Store
	Ping(ctx context.Context) error
	Close() error
}

// Factory returns a fresh, empty backend. It registers its own cleanup.
type Factory func(t *testing.T) Backend

var base = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

// Run executes the conformance suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newBackend(t).Ping(context.Background()))
	})
	t.Run("Tenants", func(t *testing.T) { testTenants(t, newBackend(t)) })
	t.Run("Documents", func(t *testing.T) { testDocuments(t, newBackend(t)) })
	t.Run("ChunksIsolation", func(t *testing.T) { testChunksIsolation(t, newBackend(t)) })
	t.Run("Memories", func(t *testing.T) { testMemories(t, newBackend(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newBackend(t)) })
	t.Run("RecentMessages", func(t *testing.T) { testRecentMessages(t, newBackend(t)) })
	t.Run("Prompts", func(t *testing.T) { testPrompts(t, newBackend(t)) })
}

func testTenants(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetTenant(ctx, "ghost")
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	require.NoError(t, b.UpsertTenant(ctx, &tenant.Tenant{ID: "acme", Name: "Acme", Plan: "pro", CreatedAt: base}))
	require.NoError(t, b.UpsertTenant(ctx, &tenant.Tenant{ID: "acme", Name: "Acme Corp", Plan: "premium", CreatedAt: base.Add(time.Hour)}))

	got, err := b.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Name)
	assert.Equal(t, "premium", got.Plan)
	assert.True(t, got.CreatedAt.Equal(base), "created_at survives an upsert")

	createDocument(t, b, "acme", "d1", base, "alpha")
	require.NoError(t, b.CreateConversation(ctx, &conversation.Conversation{ID: "c1", TenantID: "acme", Title: "x", CreatedAt: base}))
	require.NoError(t, b.CreateConversation(ctx, &conversation.Conversation{ID: "c2", TenantID: "other", Title: "y", CreatedAt: base}))

	convs, err := b.CountConversations(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, convs)
	docs, err := b.CountDocuments(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	docs, err = b.CountDocuments(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, docs)
}

func createDocument(t *testing.T, b Backend, tenantID, id string, at time.Time, texts ...string) {
	t.Helper()
	doc := &knowledge.Document{
		ID:        id,
		TenantID:  tenantID,
		Title:     "Doc " + id,
		Content:   fmt.Sprint(texts),
		Type:      knowledge.TypeManual,
		CreatedAt: at,
		UpdatedAt: at,
	}
	chunks := make([]knowledge.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = knowledge.Chunk{
			ID:         fmt.Sprintf("%s-%d", id, i),
			DocumentID: id,
			TenantID:   tenantID,
			Text:       text,
			Vector:     []float32{float32(i), 0.5, -1.25},
			Metadata:   knowledge.ChunkMetadata{ChunkIndex: i, TotalChunks: len(texts)},
		}
	}
	require.NoError(t, b.CreateDocument(context.Background(), doc, chunks))
}

func testDocuments(t *testing.T, b Backend) {
	ctx := context.Background()

	list, err := b.ListDocuments(ctx, "acme")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	createDocument(t, b, "acme", "old", base, "one", "two")
	createDocument(t, b, "acme", "new", base.Add(time.Minute), "three")

	list, err = b.ListDocuments(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
	assert.Equal(t, 2, list[1].ChunkCount)
	assert.Equal(t, knowledge.TypeManual, list[0].Type)

	doc, err := b.GetDocument(ctx, "acme", "old")
	require.NoError(t, err)
	assert.Equal(t, "Doc old", doc.Title)
	assert.True(t, doc.CreatedAt.Equal(base))

	_, err = b.GetDocument(ctx, "other", "old")
	assert.ErrorIs(t, err, knowledge.ErrNotFound)

	bad := &knowledge.Document{ID: "bad", TenantID: "acme", Title: "bad", Type: knowledge.TypeText, CreatedAt: base, UpdatedAt: base}
	err = b.CreateDocument(ctx, bad, []knowledge.Chunk{{ID: "bad-0", DocumentID: "bad", TenantID: "other", Text: "x"}})
	require.Error(t, err)
	_, err = b.GetDocument(ctx, "acme", "bad")
	assert.ErrorIs(t, err, knowledge.ErrNotFound, "a failed ingest leaves nothing behind")
}

func testChunksIsolation(t *testing.T, b Backend) {
	ctx := context.Background()
	createDocument(t, b, "acme", "a1", base, "first", "second")
	createDocument(t, b, "other", "o1", base, "foreign")
	createDocument(t, b, "acme", "a2", base, "third")

	recs, err := b.ListChunks(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	texts := []string{recs[0].Text, recs[1].Text, recs[2].Text}
	assert.Equal(t, []string{"first", "second", "third"}, texts)
	for _, r := range recs {
		assert.Equal(t, "acme", r.TenantID)
		assert.Equal(t, r.DocumentID, r.Document.ID)
	}
	assert.Equal(t, []float32{1, 0.5, -1.25}, recs[1].Vector)
	assert.Equal(t, "Doc a1", recs[1].Document.Title)
	assert.Equal(t, 2, recs[1].Metadata.TotalChunks)

	none, err := b.ListChunks(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testMemories(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetMemory(ctx, "acme", "color")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	require.NoError(t, b.SaveMemory(ctx, &memory.Entry{TenantID: "acme", Key: "color", Value: "blue", UpdatedAt: base}))
	require.NoError(t, b.SaveMemory(ctx, &memory.Entry{TenantID: "acme", Key: "color", Value: "green", UpdatedAt: base.Add(time.Second)}))
	require.NoError(t, b.SaveMemory(ctx, &memory.Entry{TenantID: "acme", Key: "animal", Value: "cat", UpdatedAt: base}))
	require.NoError(t, b.SaveMemory(ctx, &memory.Entry{TenantID: "other", Key: "color", Value: "red", UpdatedAt: base}))

	got, err := b.GetMemory(ctx, "acme", "color")
	require.NoError(t, err)
	assert.Equal(t, "green", got.Value)

	list, err := b.ListMemories(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "animal", list[0].Key)
	assert.Equal(t, "color", list[1].Key)

	other, err := b.GetMemory(ctx, "other", "color")
	require.NoError(t, err)
	assert.Equal(t, "red", other.Value)
}

func testConversations(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetConversation(ctx, "acme", "missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	require.NoError(t, b.CreateConversation(ctx, &conversation.Conversation{ID: "c1", TenantID: "acme", Title: "first", CreatedAt: base}))
	require.NoError(t, b.CreateConversation(ctx, &conversation.Conversation{ID: "c2", TenantID: "acme", Title: "second", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, b.CreateConversation(ctx, &conversation.Conversation{ID: "c3", TenantID: "other", Title: "foreign", CreatedAt: base}))

	appendMessage(t, b, "c1", "m1", conversation.RoleUser, "Olá", base)
	appendMessage(t, b, "c1", "m2", conversation.RoleAssistant, "Oi!", base.Add(time.Second))

	err = b.AppendMessage(ctx, &conversation.Message{ID: "mx", ConversationID: "ghost", Role: conversation.RoleUser, Text: "x", CreatedAt: base})
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	_, err = b.GetConversation(ctx, "acme", "c3")
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	list, err := b.ListConversations(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
	assert.Zero(t, list[0].MessageCount)
	assert.Empty(t, list[0].Preview)
	assert.Equal(t, "c1", list[1].ID)
	assert.Equal(t, 2, list[1].MessageCount)
	assert.Equal(t, "Olá", list[1].Preview)
}

func appendMessage(t *testing.T, b Backend, convID, id string, role conversation.Role, text string, at time.Time) {
	t.Helper()
	require.NoError(t, b.AppendMessage(context.Background(), &conversation.Message{
		ID:             id,
		ConversationID: convID,
		Role:           role,
		Text:           text,
		CreatedAt:      at,
	}))
}

func testRecentMessages(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateConversation(ctx, &conversation.Conversation{ID: "c1", TenantID: "acme", Title: "t", CreatedAt: base}))
	for i := 1; i <= 5; i++ {
		appendMessage(t, b, "c1", fmt.Sprintf("m%d", i), conversation.RoleUser, fmt.Sprintf("msg %d", i), base)
	}

	recent, err := b.RecentMessages(ctx, "acme", "c1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg 3", recent[0].Text)
	assert.Equal(t, "msg 5", recent[2].Text)
	assert.Equal(t, conversation.RoleUser, recent[0].Role)

	all, err := b.RecentMessages(ctx, "acme", "c1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	foreign, err := b.RecentMessages(ctx, "other", "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func testPrompts(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.GetTemplate(ctx, prompt.SystemChatbot)
	assert.ErrorIs(t, err, prompt.ErrNotFound)
	_, err = b.GetOverride(ctx, "acme", prompt.SystemChatbot)
	assert.ErrorIs(t, err, prompt.ErrNotFound)

	require.NoError(t, b.UpsertTemplate(ctx, &prompt.Template{Key: prompt.SystemChatbot, Content: "v1", Version: 1}))
	require.NoError(t, b.UpsertTemplate(ctx, &prompt.Template{Key: prompt.SystemChatbot, Content: "v2", Version: 2}))
	tpl, err := b.GetTemplate(ctx, prompt.SystemChatbot)
	require.NoError(t, err)
	assert.Equal(t, "v2", tpl.Content)
	assert.Equal(t, 2, tpl.Version)

	require.NoError(t, b.UpsertOverride(ctx, "acme", prompt.SystemChatbot, "custom"))
	got, err := b.GetOverride(ctx, "acme", prompt.SystemChatbot)
	require.NoError(t, err)
	assert.Equal(t, "custom", got)

	_, err = b.GetOverride(ctx, "other", prompt.SystemChatbot)
	assert.ErrorIs(t, err, prompt.ErrNotFound)
}
