package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/validation"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) []float32 {
	return embeddings.HashEmbedding(text)
}

type fixedEmbedder struct{ v []float32 }

func (f fixedEmbedder) Embed(context.Context, string) []float32 { return f.v }

type staticSource struct {
	records []knowledge.ChunkRecord
	err     error
	calls   []string
}

func (s *staticSource) ListChunks(_ context.Context, tenantID string) ([]knowledge.ChunkRecord, error) {
	s.calls = append(s.calls, tenantID)
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func record(tenantID, id, text string, vec []float32) knowledge.ChunkRecord {
	return knowledge.ChunkRecord{
		Chunk: knowledge.Chunk{ID: id, DocumentID: "doc-" + id, TenantID: tenantID, Text: text, Vector: vec},
		Document: knowledge.DocumentSummary{
			ID: "doc-" + id, TenantID: tenantID, Title: "Doc " + id,
		},
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestSearch_RanksAndFilters(t *testing.T) {
	src := &staticSource{records: []knowledge.ChunkRecord{
		record("acme", "low", "x", []float32{0.2, 1}),
		record("acme", "exact", "y", []float32{1, 0}),
		record("acme", "close", "z", []float32{1, 0.5}),
		record("acme", "orth", "w", []float32{0, 1}),
	}}
	e := NewEngine(src, fixedEmbedder{v: []float32{1, 0}}, nil)

	got, err := e.Search(context.Background(), "q", "acme", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].ChunkID)
	assert.Equal(t, "close", got[1].ChunkID)
	assert.Equal(t, "Doc exact", got[0].Document.Title)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)
	for _, r := range got {
		assert.Greater(t, r.Similarity, DefaultThreshold)
	}
	assert.Equal(t, []string{"acme"}, src.calls)
}

func TestSearch_TiesKeepStorageOrder(t *testing.T) {
	src := &staticSource{records: []knowledge.ChunkRecord{
		record("acme", "a", "x", []float32{1, 0}),
		record("acme", "b", "x", []float32{2, 0}),
		record("acme", "c", "x", []float32{3, 0}),
	}}
	e := NewEngine(src, fixedEmbedder{v: []float32{1, 0}}, nil)

	got, err := e.Search(context.Background(), "q", "acme", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.Equal(t, "b", got[1].ChunkID)
}

func TestSearch_HugeLimit(t *testing.T) {
	src := &staticSource{records: []knowledge.ChunkRecord{
		record("acme", "a", "x", []float32{1, 0}),
		record("acme", "b", "y", []float32{0, 1}),
	}}
	e := NewEngine(src, fixedEmbedder{v: []float32{1, 0}}, nil)

	for _, limit := range []int{1 << 40, 1 << 50, math.MaxInt} {
		got, err := e.Search(context.Background(), "q", "acme", limit)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ChunkID)
	}
}

func TestSearch_Empty(t *testing.T) {
	e := NewEngine(&staticSource{}, hashEmbedder{}, nil)

	got, err := e.Search(context.Background(), "anything", "acme", 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = e.Search(context.Background(), "anything", "acme", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_IgnoresForeignRecords(t *testing.T) {
	v := embeddings.HashEmbedding("politica de reembolso")
	src := &staticSource{records: []knowledge.ChunkRecord{
		record("other", "foreign", "politica de reembolso", v),
	}}
	e := NewEngine(src, hashEmbedder{}, nil)

	got, err := e.Search(context.Background(), "politica de reembolso", "acme", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_HashEmbeddingMatch(t *testing.T) {
	text := "o prazo de reembolso e de sete dias uteis"
	src := &staticSource{records: []knowledge.ChunkRecord{
		record("acme", "match", text, embeddings.HashEmbedding(text)),
		record("acme", "other", "horario de atendimento", embeddings.HashEmbedding("horario de atendimento")),
	}}
	e := NewEngine(src, hashEmbedder{}, nil)

	got, err := e.Search(context.Background(), text, "acme", 3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "match", got[0].ChunkID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
}

func TestSearch_Threshold(t *testing.T) {
	src := &staticSource{records: []knowledge.ChunkRecord{
		record("acme", "a", "x", []float32{1, 1}),
	}}
	e := NewEngine(src, fixedEmbedder{v: []float32{1, 0}}, nil)

	got, err := e.WithThreshold(0.8).Search(context.Background(), "q", "acme", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.Search(context.Background(), "q", "acme", 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearch_Errors(t *testing.T) {
	e := NewEngine(&staticSource{}, hashEmbedder{}, nil)
	_, err := e.Search(context.Background(), "q", "", 3)
	assert.ErrorIs(t, err, validation.ErrInvalid)

	boom := errors.New("disk gone")
	e = NewEngine(&staticSource{err: boom}, hashEmbedder{}, nil)
	_, err = e.Search(context.Background(), "q", "acme", 3)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.Contains(t, err.Error(), "disk gone")
}
