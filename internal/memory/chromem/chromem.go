// Package chromem stores long-term memories in an embedded chromem-go
// database, one collection per tenant.
package chromem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/tenant"
)

const collectionKind = "memories"

var tracer = otel.Tracer("github.com/evcomx/ragcore/internal/memory/chromem")

// Config locates the database on disk. An empty Path keeps it in memory.
type Config struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// Store implements memory.Store on chromem-go.
type Store struct {
	db     *chromem.DB
	logger *logging.Logger
}

var (
	_ memory.Store    = (*Store)(nil)
	_ memory.Searcher = (*Store)(nil)
)

// New opens or creates the database described by cfg.
func New(cfg Config, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, perr := expandPath(cfg.Path)
		if perr != nil {
			return nil, fmt.Errorf("expanding path: %w", perr)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}
	s := &Store{db: db, logger: logger.Named("memory.chromem")}
	s.logger.Info(context.Background(), "chromem memory store initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
	)
	return s, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Clean(path), nil
}

// embedFunc must be passed on every collection lookup so chromem-go does
// not fall back to its OpenAI default.
func embedFunc(_ context.Context, text string) ([]float32, error) {
	return embeddings.HashEmbedding(text), nil
}

func (s *Store) collection(tenantID string) (*chromem.Collection, error) {
	name := tenant.CollectionName(tenantID, collectionKind)
	c, err := s.db.GetOrCreateCollection(name, map[string]string{"tenant_id": tenantID}, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return c, nil
}

// SaveMemory upserts e. The document ID is the key, so a second save
// replaces the first.
func (s *Store) SaveMemory(ctx context.Context, e *memory.Entry) error {
	ctx, span := tracer.Start(ctx, "chromem.SaveMemory")
	defer span.End()

	c, err := s.collection(e.TenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	doc := chromem.Document{
		ID:      e.Key,
		Content: e.Value,
		Metadata: map[string]string{
			"tenant_id":  e.TenantID,
			"key":        e.Key,
			"updated_at": e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
		Embedding: embeddings.HashEmbedding(e.Key + " " + e.Value),
	}
	if err := c.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// GetMemory returns the entry stored under key.
func (s *Store) GetMemory(ctx context.Context, tenantID, key string) (*memory.Entry, error) {
	ctx, span := tracer.Start(ctx, "chromem.GetMemory")
	defer span.End()

	c := s.db.GetCollection(tenant.CollectionName(tenantID, collectionKind), embedFunc)
	if c == nil {
		return nil, memory.ErrNotFound
	}
	doc, err := c.GetByID(ctx, key)
	if err != nil {
		return nil, memory.ErrNotFound
	}
	return toEntry(tenantID, doc.ID, doc.Content, doc.Metadata), nil
}

// ListMemories returns every entry of tenantID ordered by key.
func (s *Store) ListMemories(ctx context.Context, tenantID string) ([]memory.Entry, error) {
	ctx, span := tracer.Start(ctx, "chromem.ListMemories")
	defer span.End()

	c := s.db.GetCollection(tenant.CollectionName(tenantID, collectionKind), embedFunc)
	if c == nil || c.Count() == 0 {
		return []memory.Entry{}, nil
	}
	n := c.Count()
	span.SetAttributes(attribute.Int("memory.count", n))

	// chromem-go has no scan API; an exhaustive query returns every document.
	results, err := c.Query(ctx, tenantID, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	out := make([]memory.Entry, 0, len(results))
	for _, r := range results {
		out = append(out, *toEntry(tenantID, r.ID, r.Content, r.Metadata))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SearchMemories ranks the tenant's entries by cosine similarity between
// query and each entry's "key value" embedding.
func (s *Store) SearchMemories(ctx context.Context, tenantID, query string, limit int) ([]memory.Match, error) {
	ctx, span := tracer.Start(ctx, "chromem.SearchMemories")
	defer span.End()

	c := s.db.GetCollection(tenant.CollectionName(tenantID, collectionKind), embedFunc)
	if c == nil || c.Count() == 0 || limit <= 0 {
		return []memory.Match{}, nil
	}
	// chromem-go rejects nResults above the collection size.
	n := min(limit, c.Count())
	results, err := c.QueryEmbedding(ctx, embeddings.HashEmbedding(query), n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	out := make([]memory.Match, 0, len(results))
	for _, r := range results {
		out = append(out, memory.Match{
			Entry:      *toEntry(tenantID, r.ID, r.Content, r.Metadata),
			Similarity: r.Similarity,
		})
	}
	span.SetAttributes(attribute.Int("memory.results", len(out)))
	return out, nil
}

// Close is a no-op; chromem-go persists on every write.
func (s *Store) Close() error {
	return nil
}

func toEntry(tenantID, id, content string, md map[string]string) *memory.Entry {
	e := &memory.Entry{TenantID: tenantID, Key: id, Value: content}
	if ts, err := time.Parse(time.RFC3339Nano, md["updated_at"]); err == nil {
		e.UpdatedAt = ts
	}
	return e
}
