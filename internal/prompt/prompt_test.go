package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcomx/ragcore/internal/tenant"
)

type fakeStore struct {
	templates map[string]*Template
	overrides map[string]string
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{templates: map[string]*Template{}, overrides: map[string]string{}}
}

func (f *fakeStore) UpsertTemplate(_ context.Context, t *Template) error {
	f.templates[t.Key] = t
	return nil
}

func (f *fakeStore) GetTemplate(_ context.Context, key string) (*Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.templates[key]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) UpsertOverride(_ context.Context, tenantID, key, content string) error {
	f.overrides[tenantID+"/"+key] = content
	return nil
}

func (f *fakeStore) GetOverride(_ context.Context, tenantID, key string) (string, error) {
	c, ok := f.overrides[tenantID+"/"+key]
	if !ok {
		return "", ErrNotFound
	}
	return c, nil
}

type tenants map[string]string

func (m tenants) Get(_ context.Context, id string) (*tenant.Tenant, error) {
	name, ok := m[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return &tenant.Tenant{ID: id, Name: name}, nil
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	b := NewBuilder(store, tenants{"acme": "Acme Ltda", "sports": "Sports Training"}, "")

	got, err := b.Build(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompt, got)

	require.NoError(t, store.UpsertTemplate(ctx, &Template{Key: SystemChatbot, Content: DefaultSystemTemplate, Version: 1}))

	got, err = b.Build(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Você é um assistente da empresa Acme Ltda. Seja objetivo, amistoso e responda em português do Brasil.", got)

	got, err = b.Build(ctx, "ghost")
	require.NoError(t, err)
	assert.Contains(t, got, "da empresa sua empresa.")

	require.NoError(t, store.UpsertOverride(ctx, "sports", SystemChatbot, "Assistente da {{tenant_name}} ({{tenant_name}})"))
	got, err = b.Build(ctx, "sports")
	require.NoError(t, err)
	assert.Equal(t, "Assistente da Sports Training ({{tenant_name}})", got)
}

func TestBuilder_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	b := NewBuilder(store, tenants{}, "cliente")

	_, err := b.Build(context.Background(), "acme")
	assert.ErrorContains(t, err, "db down")
}

func TestBuilder_CustomDefaultName(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.UpsertTemplate(ctx, &Template{Key: SystemChatbot, Content: "Olá de {{tenant_name}}"}))

	got, err := NewBuilder(store, tenants{}, "nossa loja").Build(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Olá de nossa loja", got)
}

func TestEnsureTemplate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	wrote, err := EnsureTemplate(ctx, store, SystemChatbot, DefaultSystemTemplate)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = EnsureTemplate(ctx, store, SystemChatbot, "replacement")
	require.NoError(t, err)
	assert.False(t, wrote)

	tpl, err := store.GetTemplate(ctx, SystemChatbot)
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemTemplate, tpl.Content)
}
