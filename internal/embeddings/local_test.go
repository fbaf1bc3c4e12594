package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHash(t *testing.T) {
	tests := []struct {
		token string
		hash  int32
		index int
	}{
		{"hello", 99162322, 82},
		{"conhecimento", -428591284, 52},
		{"informação", 63617531, 251},
		{"😀x", 54959989, 373},
		{"polynomial", -1079839020, 300},
		{"", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.hash, TokenHash(tt.token))
			assert.Equal(t, tt.index, tokenIndex(tt.token))
		})
	}
}

func TestHashEmbedding(t *testing.T) {
	t.Run("fixed length and unit norm", func(t *testing.T) {
		v := HashEmbedding("Olá mundo, base de conhecimento")
		require.Len(t, v, LocalDimension)
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, HashEmbedding("o mesmo texto"), HashEmbedding("o mesmo texto"))
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		assert.Equal(t, HashEmbedding("Hello   World"), HashEmbedding("hello world\n"))
	})

	t.Run("counts repeated tokens", func(t *testing.T) {
		v := HashEmbedding("hello hello polynomial")
		// counts 2 and 1 normalise to 2/sqrt(5) and 1/sqrt(5)
		assert.InDelta(t, 2/math.Sqrt(5), float64(v[82]), 1e-6)
		assert.InDelta(t, 1/math.Sqrt(5), float64(v[300]), 1e-6)
	})

	t.Run("no tokens yields zero vector", func(t *testing.T) {
		for _, text := range []string{"", "   \n\t"} {
			v := HashEmbedding(text)
			require.Len(t, v, LocalDimension)
			for _, x := range v {
				assert.Zero(t, x)
			}
		}
	})
}

func TestLocalProvider(t *testing.T) {
	p := NewLocalProvider()
	assert.Equal(t, "local", p.Name())
	assert.Equal(t, 384, p.Dimension())

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, HashEmbedding("c"), vecs[1])

	q, err := p.EmbedQuery(context.Background(), "a b")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], q)
	assert.NoError(t, p.Close())
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg     ProviderConfig
		name    string
		wantErr bool
	}{
		{cfg: ProviderConfig{}, name: "local"},
		{cfg: ProviderConfig{Provider: "openai", APIKey: "k"}, name: "openai"},
		{cfg: ProviderConfig{Provider: "openai"}, wantErr: true},
		{cfg: ProviderConfig{Provider: "ollama"}, name: "ollama"},
		{cfg: ProviderConfig{Provider: "tei", BaseURL: "http://tei:8080"}, name: "tei"},
		{cfg: ProviderConfig{Provider: "tei"}, wantErr: true},
		{cfg: ProviderConfig{Provider: "bert"}, wantErr: true},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.cfg)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidConfig, "provider %q", tt.cfg.Provider)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.name, p.Name())
	}
}

func TestDimensionForModel(t *testing.T) {
	assert.Equal(t, 1536, dimensionForModel("text-embedding-3-small"))
	assert.Equal(t, 3072, dimensionForModel("text-embedding-3-large"))
	assert.Equal(t, 768, dimensionForModel("nomic-embed-text:latest"))
	assert.Equal(t, 384, dimensionForModel("BAAI/bge-small-en-v1.5"))
	assert.Equal(t, 0, dimensionForModel("mystery"))
	assert.Equal(t, 42, resolveDimension(ProviderConfig{Model: "text-embedding-3-small", Dimension: 42}))
}
