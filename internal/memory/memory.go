// Package memory is the tenant-scoped long-term key/value fact store.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/validation"
)

var (
	// ErrNotFound is returned when no entry exists for (tenant, key).
	ErrNotFound = errors.New("memory not found")
	// ErrSearchUnsupported is returned by Search when the store has no
	// similarity lookup.
	ErrSearchUnsupported = errors.New("memory store does not support search")
)

const (
	maxKeyLen          = 255
	defaultSearchLimit = 5
)

// Entry is one long-term fact, unique per (TenantID, Key).
type Entry struct {
	TenantID  string    `json:"tenantId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists entries. Save is an upsert: the last writer wins.
type Store interface {
	SaveMemory(ctx context.Context, e *Entry) error
	// GetMemory returns ErrNotFound when the key is absent for tenantID.
	GetMemory(ctx context.Context, tenantID, key string) (*Entry, error)
	// ListMemories returns the tenant's entries ordered by key.
	ListMemories(ctx context.Context, tenantID string) ([]Entry, error)
}

// Match is an entry ranked against a search query.
type Match struct {
	Entry
	Similarity float32 `json:"similarity"`
}

// Searcher is implemented by stores that rank entries by similarity to a
// query. Results are best first and hold at most limit entries.
type Searcher interface {
	SearchMemories(ctx context.Context, tenantID, query string, limit int) ([]Match, error)
}

// Redactor scrubs secrets from values before they are stored.
type Redactor interface {
	Redact(ctx context.Context, text string) string
}

// Service validates and forwards memory operations to a Store.
type Service struct {
	store    Store
	redactor Redactor
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRedactor scrubs values on Save.
func WithRedactor(r Redactor) Option {
	return func(s *Service) { s.redactor = r }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a memory service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("memory")
	return s
}

// Save upserts value under (tenantID, key).
func (s *Service) Save(ctx context.Context, tenantID, key, value string) (*Entry, error) {
	key = strings.TrimSpace(key)
	if err := validate(tenantID, key); err != nil {
		return nil, err
	}
	if s.redactor != nil {
		value = s.redactor.Redact(ctx, value)
	}
	e := &Entry{TenantID: tenantID, Key: key, Value: value, UpdatedAt: s.now().UTC()}
	if err := s.store.SaveMemory(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "memory saved", zap.String("key", key))
	return e, nil
}

// Get returns the entry for (tenantID, key) or ErrNotFound.
func (s *Service) Get(ctx context.Context, tenantID, key string) (*Entry, error) {
	key = strings.TrimSpace(key)
	if err := validate(tenantID, key); err != nil {
		return nil, err
	}
	return s.store.GetMemory(ctx, tenantID, key)
}

// List returns every entry of tenantID.
func (s *Service) List(ctx context.Context, tenantID string) ([]Entry, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListMemories(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Search returns the tenant's entries closest to query. A limit of 0 uses
// the default of 5.
func (s *Service) Search(ctx context.Context, tenantID, query string, limit int) ([]Match, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validation.New("query", "is required")
	}
	if limit < 0 {
		return nil, validation.New("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	searcher, ok := s.store.(Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	matches, err := searcher.SearchMemories(ctx, tenantID, query, limit)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []Match{}
	}
	s.logger.Debug(ctx, "memory search completed", zap.Int("results", len(matches)))
	return matches, nil
}

// TenantMemories adapts List for tenant profiles.
func (s *Service) TenantMemories(ctx context.Context, tenantID string) ([]tenant.Memory, error) {
	entries, err := s.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]tenant.Memory, len(entries))
	for i, e := range entries {
		out[i] = tenant.Memory{Key: e.Key, Value: e.Value}
	}
	return out, nil
}

func validate(tenantID, key string) error {
	if err := tenant.ValidateID(tenantID); err != nil {
		return err
	}
	if key == "" {
		return validation.New("key", "is required")
	}
	if utf8.RuneCountInString(key) > maxKeyLen {
		return validation.Newf("key", "exceeds %d characters", maxKeyLen)
	}
	return nil
}
