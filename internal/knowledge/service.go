package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/chunker"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/validation"
)

var tracer = otel.Tracer("github.com/evcomx/ragcore/internal/knowledge")

// Embedder produces one vector per text and never fails.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// Redactor masks secrets in text before it is stored.
type Redactor interface {
	Redact(ctx context.Context, text string) string
}

// IngestRequest is the input of Ingest.
type IngestRequest struct {
	TenantID string       `json:"-"`
	Title    string       `json:"title"`
	Content  string       `json:"content"`
	Type     DocumentType `json:"type"`
}

// IngestResult reports the created document.
type IngestResult struct {
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

// Service ingests and lists documents.
type Service struct {
	store    Store
	chunker  *chunker.Chunker
	embedder Embedder
	redactor Redactor
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRedactor masks secrets in content before chunking.
func WithRedactor(r Redactor) Option {
	return func(s *Service) { s.redactor = r }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l.Named("knowledge") }
}

// NewService creates a knowledge service.
func NewService(store Store, c *chunker.Chunker, e Embedder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		chunker:  c,
		embedder: e,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates req, chunks and embeds its content, then stores the
// document and its chunks in one write. Content that yields no chunk above
// the noise threshold is rejected and nothing is stored.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Ingest")
	defer span.End()

	res, err := s.ingest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ingestFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	span.SetAttributes(
		attribute.String("document.id", res.DocumentID),
		attribute.Int("document.chunks", res.Chunks),
	)
	return res, nil
}

func (s *Service) ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := tenant.ValidateID(req.TenantID); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, validation.New("title", "is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, validation.New("content", "is required")
	}
	if req.Type == "" {
		req.Type = TypeManual
	}
	if !req.Type.Valid() {
		return nil, validation.Newf("type", "unknown document type %q", req.Type)
	}

	content := req.Content
	if s.redactor != nil {
		content = s.redactor.Redact(ctx, content)
	}

	texts, err := s.chunker.Split(content)
	if err != nil {
		return nil, fmt.Errorf("chunking document: %w", err)
	}
	if len(texts) == 0 {
		return nil, validation.Newf("content", "produced no chunk longer than %d characters", s.chunker.Options().MinLength)
	}

	vectors := s.embedder.EmbedBatch(ctx, texts)
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding document: got %d vectors for %d chunks", len(vectors), len(texts))
	}

	now := s.now().UTC()
	doc := &Document{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		Title:     req.Title,
		Content:   content,
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Text:       text,
			Vector:     vectors[i],
			Metadata:   ChunkMetadata{ChunkIndex: i, TotalChunks: len(texts)},
		}
	}

	if err := s.store.CreateDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	documentsIngested.WithLabelValues(string(doc.Type)).Inc()
	chunksStored.Add(float64(len(chunks)))
	s.logger.Info(ctx, "document ingested",
		zap.String("document_id", doc.ID),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
	)
	return &IngestResult{DocumentID: doc.ID, Chunks: len(chunks)}, nil
}

// List returns the tenant's documents, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]DocumentSummary, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if docs == nil {
		docs = []DocumentSummary{}
	}
	return docs, nil
}

// Get returns one document of the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Document, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, tenantID, id)
}
