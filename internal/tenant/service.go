package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MemorySource lists a tenant's long-term memories for its profile.
type MemorySource interface {
	TenantMemories(ctx context.Context, tenantID string) ([]Memory, error)
}

// Service resolves tenants and their profiles.
type Service struct {
	store    Store
	memories MemorySource
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMemories fills Profile.Memories from src.
func WithMemories(src MemorySource) Option {
	return func(s *Service) { s.memories = src }
}

// NewService creates a tenant service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates or renames a tenant.
func (s *Service) Register(ctx context.Context, t *Tenant) error {
	if err := ValidateID(t.ID); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	return s.store.UpsertTenant(ctx, t)
}

// Get returns the tenant or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// Profile returns the tenant with its conversation and document counts
// and, when a MemorySource is configured, its long-term memories.
func (s *Service) Profile(ctx context.Context, id string) (*Profile, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	convs, err := s.store.CountConversations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}
	docs, err := s.store.CountDocuments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	p := &Profile{Tenant: *t, ConversationCount: convs, DocumentCount: docs, Memories: []Memory{}}
	if s.memories != nil {
		mems, err := s.memories.TenantMemories(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("listing memories: %w", err)
		}
		p.Memories = mems
	}
	return p, nil
}

// IsNotFound reports whether err means the tenant does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
