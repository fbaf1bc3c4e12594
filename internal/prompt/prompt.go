// Package prompt builds a tenant's system prompt from a global template
// and an optional per-tenant override.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evcomx/ragcore/internal/tenant"
)

const (
	// SystemChatbot is the key of the chat system template.
	SystemChatbot = "system_chatbot"
	// Placeholder is replaced once with the tenant name.
	Placeholder = "{{tenant_name}}"
	// DefaultPrompt is used when no template exists.
	DefaultPrompt = "Você é um assistente."
	// DefaultTenantName stands in for unknown tenants.
	DefaultTenantName = "sua empresa"
	// DefaultSystemTemplate is the content seeded for SystemChatbot.
	DefaultSystemTemplate = "Você é um assistente da empresa {{tenant_name}}. Seja objetivo, amistoso e responda em português do Brasil."
)

// ErrNotFound is returned for a missing template or override.
var ErrNotFound = errors.New("prompt not found")

// Template is a global prompt template.
type Template struct {
	Key     string `json:"key" toml:"key"`
	Content string `json:"content" toml:"content"`
	Version int    `json:"version" toml:"version"`
}

// Store persists templates and per-tenant overrides.
type Store interface {
	UpsertTemplate(ctx context.Context, t *Template) error
	// GetTemplate returns ErrNotFound for an unknown key.
	GetTemplate(ctx context.Context, key string) (*Template, error)
	UpsertOverride(ctx context.Context, tenantID, key, content string) error
	// GetOverride returns ErrNotFound when the tenant has no override.
	GetOverride(ctx context.Context, tenantID, key string) (string, error)
}

// TenantLookup resolves tenant names.
type TenantLookup interface {
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Builder renders system prompts.
type Builder struct {
	store       Store
	tenants     TenantLookup
	defaultName string
}

// NewBuilder creates a Builder. An empty defaultName uses DefaultTenantName.
func NewBuilder(store Store, tenants TenantLookup, defaultName string) *Builder {
	if defaultName == "" {
		defaultName = DefaultTenantName
	}
	return &Builder{store: store, tenants: tenants, defaultName: defaultName}
}

// Build returns the system prompt for tenantID. The tenant's override
// wins over the global template; the first placeholder is replaced with
// the tenant name.
func (b *Builder) Build(ctx context.Context, tenantID string) (string, error) {
	tpl, err := b.store.GetTemplate(ctx, SystemChatbot)
	if errors.Is(err, ErrNotFound) {
		return DefaultPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading template: %w", err)
	}

	content := tpl.Content
	override, err := b.store.GetOverride(ctx, tenantID, SystemChatbot)
	switch {
	case err == nil:
		content = override
	case !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("loading override: %w", err)
	}

	name := b.defaultName
	t, err := b.tenants.Get(ctx, tenantID)
	switch {
	case err == nil && t.Name != "":
		name = t.Name
	case err != nil && !errors.Is(err, tenant.ErrNotFound):
		return "", fmt.Errorf("loading tenant: %w", err)
	}
	return strings.Replace(content, Placeholder, name, 1), nil
}

// EnsureTemplate stores content under key unless a template already exists.
// It reports whether it wrote one.
func EnsureTemplate(ctx context.Context, store Store, key, content string) (bool, error) {
	_, err := store.GetTemplate(ctx, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("loading template: %w", err)
	}
	if err := store.UpsertTemplate(ctx, &Template{Key: key, Content: content, Version: 1}); err != nil {
		return false, fmt.Errorf("storing template: %w", err)
	}
	return true, nil
}
