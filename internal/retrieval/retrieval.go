// Package retrieval ranks a tenant's stored chunks against a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/tenant"
)

// DefaultThreshold is the similarity a result must exceed.
const DefaultThreshold = 0.3

// ErrRetrieval wraps persistence read failures during a search.
var ErrRetrieval = errors.New("retrieval failed")

var tracer = otel.Tracer("github.com/evcomx/ragcore/internal/retrieval")

// QueryEmbedder embeds a query and never fails.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// ChunkSource lists a tenant's chunks in storage order.
type ChunkSource interface {
	ListChunks(ctx context.Context, tenantID string) ([]knowledge.ChunkRecord, error)
}

// Result is one ranked chunk.
type Result struct {
	Document   knowledge.DocumentSummary `json:"document"`
	ChunkID    string                    `json:"chunkId"`
	Chunk      string                    `json:"chunk"`
	Similarity float64                   `json:"similarity"`
}

// Engine runs similarity searches.
type Engine struct {
	source    ChunkSource
	embedder  QueryEmbedder
	threshold float64
	logger    *logging.Logger
}

// NewEngine creates an engine with the default threshold.
func NewEngine(source ChunkSource, embedder QueryEmbedder, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		source:    source,
		embedder:  embedder,
		threshold: DefaultThreshold,
		logger:    logger.Named("retrieval"),
	}
}

// WithThreshold returns a copy of e using threshold.
func (e *Engine) WithThreshold(threshold float64) *Engine {
	cp := *e
	cp.threshold = threshold
	return &cp
}

// Search embeds query, scores every chunk of tenantID by cosine
// similarity, orders them by descending similarity with ties kept in
// storage order, drops results at or below the threshold and returns at
// most limit results. No match is an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, query, tenantID string, limit int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.limit", limit))

	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Result{}, nil
	}

	qv := e.embedder.Embed(ctx, query)

	records, err := e.source.ListChunks(ctx, tenantID)
	if err != nil {
		err = fmt.Errorf("%w: loading chunks: %v", ErrRetrieval, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	scored := make([]Result, 0, len(records))
	for _, r := range records {
		if r.TenantID != tenantID {
			continue
		}
		scored = append(scored, Result{
			Document:   r.Document,
			ChunkID:    r.ID,
			Chunk:      r.Text,
			Similarity: CosineSimilarity(qv, r.Vector),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	out := make([]Result, 0, min(limit, len(scored)))
	for _, r := range scored {
		if len(out) == limit {
			break
		}
		if r.Similarity <= e.threshold {
			break
		}
		out = append(out, r)
	}

	span.SetAttributes(
		attribute.Int("retrieval.candidates", len(records)),
		attribute.Int("retrieval.results", len(out)),
	)
	e.logger.Debug(ctx, "search completed",
		zap.Int("candidates", len(records)),
		zap.Int("results", len(out)),
	)
	return out, nil
}

// CosineSimilarity returns dot(a,b)/(|a||b|). It is 0 when the lengths
// differ or either norm is 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
