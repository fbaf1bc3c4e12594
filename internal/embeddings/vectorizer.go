package embeddings

import (
	"context"
	"fmt"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/evcomx/ragcore/internal/logging"
)

// VectorizerOptions bounds calls to the primary provider.
type VectorizerOptions struct {
	// Timeout bounds each provider call. Zero means 10s.
	Timeout time.Duration
	// CacheSize is the number of query vectors kept. Zero disables caching.
	CacheSize int
	// RateLimit is provider calls per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Vectorizer embeds text with a primary provider and falls back to the
// local strategy on any provider failure or timeout. Its methods never
// return an error.
type Vectorizer struct {
	primary Provider
	local   *LocalProvider
	timeout time.Duration
	limiter *rate.Limiter
	cache   *lru.Cache[string, []float32]
	metrics *Metrics
	logger  *logging.Logger
}

// NewVectorizer wraps primary. A nil primary, or a local one, makes the
// Vectorizer purely local.
func NewVectorizer(primary Provider, opts VectorizerOptions, logger *logging.Logger) (*Vectorizer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	v := &Vectorizer{
		local:   NewLocalProvider(),
		timeout: opts.Timeout,
		metrics: NewMetrics(logger.Underlying()),
		logger:  logger.Named("vectorizer"),
	}
	if primary != nil && primary.Name() != "local" {
		v.primary = primary
	}
	if v.timeout <= 0 {
		v.timeout = 10 * time.Second
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, []float32](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: cache: %v", ErrInvalidConfig, err)
		}
		v.cache = c
	}
	return v, nil
}

// Strategy names the primary strategy in use.
func (v *Vectorizer) Strategy() string {
	if v.primary == nil {
		return v.local.Name()
	}
	return v.primary.Name()
}

// Embed returns the vector for text. Cached vectors are returned as
// copies.
func (v *Vectorizer) Embed(ctx context.Context, text string) []float32 {
	if v.primary == nil || text == "" {
		return HashEmbedding(text)
	}
	if v.cache != nil {
		if vec, ok := v.cache.Get(text); ok {
			v.metrics.RecordCacheHit(ctx)
			return slices.Clone(vec)
		}
	}

	vecs, err := v.callPrimary(ctx, "embed_query", []string{text})
	if err != nil {
		v.fallback(ctx, err, 1)
		return HashEmbedding(text)
	}
	if v.cache != nil {
		v.cache.Add(text, slices.Clone(vecs[0]))
	}
	return vecs[0]
}

// EmbedBatch returns one vector per text, in order. A provider failure
// makes the whole batch fall back so that a document never mixes
// strategies.
func (v *Vectorizer) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	if v.primary != nil {
		vecs, err := v.callPrimary(ctx, "embed_documents", texts)
		if err == nil {
			return vecs
		}
		v.fallback(ctx, err, len(texts))
	}
	out, _ := v.local.EmbedDocuments(ctx, texts)
	return out
}

// Close releases the primary provider.
func (v *Vectorizer) Close() error {
	if v.primary == nil {
		return nil
	}
	return v.primary.Close()
}

func (v *Vectorizer) callPrimary(ctx context.Context, op string, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := func() ([][]float32, error) {
		if v.limiter != nil {
			if err := v.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limit: %v", ErrVectorization, err)
			}
		}
		return v.primary.EmbedDocuments(ctx, texts)
	}()
	if err == nil {
		err = checkBatch(vecs, len(texts))
	}
	v.metrics.RecordGeneration(ctx, v.primary.Name(), op, time.Since(start), len(texts), err)
	return vecs, err
}

func (v *Vectorizer) fallback(ctx context.Context, err error, n int) {
	v.metrics.RecordFallback(ctx, v.primary.Name(), n)
	v.logger.Warn(ctx, "embedding provider failed, using local strategy",
		zap.String("provider", v.primary.Name()),
		zap.Int("texts", n),
		zap.Error(err),
	)
}
