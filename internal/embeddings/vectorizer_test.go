package embeddings

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/evcomx/ragcore/internal/logging"
)

type stubProvider struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *stubProvider) Name() string   { return "stub" }
func (s *stubProvider) Dimension() int { return 2 }
func (s *stubProvider) Close() error   { return nil }

func (s *stubProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := s.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (s *stubProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(len(texts[i]))}
	}
	return out, nil
}

func TestVectorizer_LocalOnly(t *testing.T) {
	v, err := NewVectorizer(nil, VectorizerOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", v.Strategy())
	assert.Equal(t, HashEmbedding("abc"), v.Embed(context.Background(), "abc"))

	v, err = NewVectorizer(NewLocalProvider(), VectorizerOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", v.Strategy())
}

func TestVectorizer_Primary(t *testing.T) {
	stub := &stubProvider{}
	v, err := NewVectorizer(stub, VectorizerOptions{CacheSize: 8}, nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", v.Strategy())

	ctx := context.Background()
	assert.Equal(t, []float32{1, 3}, v.Embed(ctx, "abc"))
	assert.Equal(t, []float32{1, 3}, v.Embed(ctx, "abc"))
	assert.Equal(t, int32(1), stub.calls.Load(), "second call served from cache")

	batch := v.EmbedBatch(ctx, []string{"a", "bb"})
	assert.Equal(t, [][]float32{{1, 1}, {1, 2}}, batch)
	assert.Nil(t, v.EmbedBatch(ctx, nil))
}

func TestVectorizer_CachedVectorIsCopied(t *testing.T) {
	stub := &stubProvider{}
	v, err := NewVectorizer(stub, VectorizerOptions{CacheSize: 8}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	first := v.Embed(ctx, "abc")
	first[0] = 99

	second := v.Embed(ctx, "abc")
	assert.Equal(t, []float32{1, 3}, second)
	second[1] = 42

	assert.Equal(t, []float32{1, 3}, v.Embed(ctx, "abc"))
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestVectorizer_FallbackOnError(t *testing.T) {
	stub := &stubProvider{err: errors.New("connection refused")}
	log := logging.NewTestLogger()
	v, err := NewVectorizer(stub, VectorizerOptions{CacheSize: 8}, log.Logger)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, HashEmbedding("texto"), v.Embed(ctx, "texto"))
	assert.Equal(t, [][]float32{HashEmbedding("a"), HashEmbedding("b")}, v.EmbedBatch(ctx, []string{"a", "b"}))
	log.AssertLogged(t, zapcore.WarnLevel, "using local strategy")

	// failures are not cached
	stub.err = nil
	assert.Equal(t, []float32{1, 5}, v.Embed(ctx, "texto"))
}

func TestVectorizer_FallbackOnTimeout(t *testing.T) {
	stub := &stubProvider{delay: time.Second}
	v, err := NewVectorizer(stub, VectorizerOptions{Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	got := v.Embed(context.Background(), "lento")
	assert.Equal(t, HashEmbedding("lento"), got)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestVectorizer_FallbackOnShortBatch(t *testing.T) {
	bad := &shortProvider{}
	v, err := NewVectorizer(bad, VectorizerOptions{}, nil)
	require.NoError(t, err)
	got := v.EmbedBatch(context.Background(), []string{"x", "y"})
	assert.Equal(t, [][]float32{HashEmbedding("x"), HashEmbedding("y")}, got)
}

type shortProvider struct{ stubProvider }

func (s *shortProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}

func TestVectorizer_EmptyTextSkipsProvider(t *testing.T) {
	stub := &stubProvider{}
	v, err := NewVectorizer(stub, VectorizerOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, HashEmbedding(""), v.Embed(context.Background(), ""))
	assert.Zero(t, stub.calls.Load())
}

func TestVectorizer_RateLimitTimeoutFallsBack(t *testing.T) {
	stub := &stubProvider{}
	v, err := NewVectorizer(stub, VectorizerOptions{RateLimit: 0.001, Burst: 1, Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, []float32{1, 1}, v.Embed(ctx, "a"))
	// the bucket is empty and refills far beyond the timeout
	assert.Equal(t, HashEmbedding("b"), v.Embed(ctx, "b"))
	assert.Equal(t, int32(1), stub.calls.Load())
}
