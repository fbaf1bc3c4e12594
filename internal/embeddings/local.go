package embeddings

import (
	"context"
	"math"
	"strings"
	"unicode/utf16"
)

// LocalDimension is the vector length of the local strategy.
const LocalDimension = 384

// LocalProvider is the deterministic bag-of-hashed-tokens embedder.
//
// The text is lower-cased and split on whitespace. For every token a
// 32-bit signed hash is folded over its UTF-16 code units as
// h = int32(h*31 + unit), starting from 0, wrapping on overflow. The
// component at |h| mod 384 is incremented, and the result is
// L2-normalised. A text without tokens yields the zero vector.
type LocalProvider struct{}

// NewLocalProvider returns the local embedder.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Dimension() int { return LocalDimension }

func (p *LocalProvider) Close() error { return nil }

// EmbedQuery never fails.
func (p *LocalProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return HashEmbedding(text), nil
}

// EmbedDocuments never fails.
func (p *LocalProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashEmbedding(t)
	}
	return out, nil
}

// HashEmbedding computes the local embedding of text.
func HashEmbedding(text string) []float32 {
	counts := make([]float64, LocalDimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		counts[tokenIndex(token)]++
	}

	var sum float64
	for _, c := range counts {
		sum += c * c
	}
	out := make([]float32, LocalDimension)
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, c := range counts {
		out[i] = float32(c / norm)
	}
	return out
}

// TokenHash returns the 32-bit rolling hash of token.
func TokenHash(token string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(token)) {
		h = h*31 + int32(u)
	}
	return h
}

func tokenIndex(token string) int {
	h := int64(TokenHash(token))
	if h < 0 {
		h = -h
	}
	return int(h % LocalDimension)
}
