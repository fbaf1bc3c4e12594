// Package tenant holds the tenant model, identifier rules and the context
// key that scopes every knowledge, memory and conversation operation.
package tenant

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/evcomx/ragcore/internal/validation"
)

var (
	// ErrMissingTenant is returned when no tenant is bound to the context.
	ErrMissingTenant = errors.New("tenant missing from context")
	// ErrNotFound is returned when a tenant record does not exist.
	ErrNotFound = errors.New("tenant not found")
)

const maxIDLen = 64

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Tenant is an isolated customer account.
type Tenant struct {
	ID        string    `json:"id" toml:"id"`
	Name      string    `json:"name" toml:"name"`
	Plan      string    `json:"plan" toml:"plan"`
	CreatedAt time.Time `json:"createdAt" toml:"-"`
}

// Memory is a long-term fact attached to a tenant profile.
type Memory struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Profile is a tenant with its usage counts and long-term memories.
type Profile struct {
	Tenant
	ConversationCount int      `json:"conversationCount"`
	DocumentCount     int      `json:"documentCount"`
	Memories          []Memory `json:"memories"`
}

// Store persists tenants and reports per-tenant counts.
type Store interface {
	UpsertTenant(ctx context.Context, t *Tenant) error
	// GetTenant returns ErrNotFound for unknown IDs.
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	CountConversations(ctx context.Context, tenantID string) (int, error)
	CountDocuments(ctx context.Context, tenantID string) (int, error)
}

// ValidateID checks a tenant identifier.
func ValidateID(id string) error {
	switch {
	case id == "":
		return validation.New("tenant_id", "is required")
	case len(id) > maxIDLen:
		return validation.Newf("tenant_id", "exceeds %d characters", maxIDLen)
	case !idPattern.MatchString(id):
		return validation.New("tenant_id", "must contain only letters, digits, '-' or '_'")
	}
	return nil
}

type ctxKey struct{}

// WithID binds a tenant ID to ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the bound tenant ID. It fails closed with
// ErrMissingTenant when nothing, or an empty ID, is bound.
func FromContext(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxKey{}).(string)
	if id == "" {
		return "", ErrMissingTenant
	}
	return id, nil
}

// CollectionName returns the per-tenant collection name for kind, e.g.
// "acme_memories". The tenant ID is kept verbatim so distinct tenants
// never share a collection.
func CollectionName(tenantID, kind string) string {
	return tenantID + "_" + kind
}
