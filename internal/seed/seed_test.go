package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcomx/ragcore/internal/embeddings"
	"github.com/evcomx/ragcore/internal/services"
	"github.com/evcomx/ragcore/internal/storage/memstore"
)

func newTargets(t *testing.T) (Targets, services.Registry) {
	t.Helper()
	vec, err := embeddings.NewVectorizer(embeddings.NewLocalProvider(), embeddings.VectorizerOptions{}, nil)
	require.NoError(t, err)
	reg, err := services.NewRegistry(context.Background(), services.Options{Backend: memstore.New(), Embedder: vec})
	require.NoError(t, err)
	return Targets{
		Tenants:       reg.Tenants(),
		Prompts:       reg.Backend(),
		Knowledge:     reg.Knowledge(),
		Memories:      reg.Memory(),
		Conversations: reg.Conversations(),
	}, reg
}

func TestSample(t *testing.T) {
	f, err := Sample()
	require.NoError(t, err)
	require.Len(t, f.Templates, 1)
	require.Len(t, f.Tenants, 2)

	st := f.Tenants[0]
	assert.Equal(t, "sports-training", st.ID)
	assert.Equal(t, "Sports Training", st.Name)
	assert.Equal(t, "pro", st.Plan)
	assert.NotEmpty(t, st.SystemPrompt)
	assert.Len(t, st.Documents, 1)
	assert.Len(t, st.Conversations, 2)
	assert.Len(t, st.Conversations[0].Messages, 3)
	assert.Equal(t, "premium", f.Tenants[1].Plan)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse(`
[[tenants]]
id = "acme"
nmae = "Acme"
`)
	assert.ErrorContains(t, err, "unknown keys")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("[[tenants]\n")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[tenants]]\nid = \"acme\"\nname = \"Acme\"\n"), 0o600))
	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Tenants, 1)
	assert.Equal(t, "Acme", f.Tenants[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	targets, reg := newTargets(t)
	f, err := Sample()
	require.NoError(t, err)

	rep, err := Apply(ctx, f, targets, nil)
	require.NoError(t, err)
	assert.Equal(t, &Report{Templates: 1, Tenants: 2, Overrides: 2, Documents: 2, Memories: 1, Conversations: 3}, rep)

	sys, err := reg.Prompts().Build(ctx, "colavouro")
	require.NoError(t, err)
	assert.Contains(t, sys, "assistente virtual da Colavouro")

	profile, err := reg.Tenants().Profile(ctx, "sports-training")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.DocumentCount)
	assert.Equal(t, 2, profile.ConversationCount)
	require.Len(t, profile.Memories, 1)

	hits, err := reg.Retrieval().Search(ctx, "aulas de pilates com aparelhos", "sports-training", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Modalidades e horários", hits[0].Document.Title)

	thread, err := reg.Conversations().List(ctx, "sports-training")
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, 3, thread[0].MessageCount)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	targets, reg := newTargets(t)
	f, err := Sample()
	require.NoError(t, err)

	_, err = Apply(ctx, f, targets, nil)
	require.NoError(t, err)
	rep, err := Apply(ctx, f, targets, nil)
	require.NoError(t, err)
	assert.Zero(t, rep.Documents)
	assert.Zero(t, rep.Conversations)
	assert.Equal(t, 5, rep.Skipped)

	docs, err := reg.Knowledge().List(ctx, "colavouro")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestApply_RequiresTargets(t *testing.T) {
	_, err := Apply(context.Background(), &File{}, Targets{}, nil)
	assert.ErrorContains(t, err, "every target is required")
}

func TestApply_InvalidTenant(t *testing.T) {
	targets, _ := newTargets(t)
	f := &File{Tenants: []Tenant{{}}}
	_, err := Apply(context.Background(), f, targets, nil)
	assert.Error(t, err)
}
