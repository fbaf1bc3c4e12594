package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/storage/sqlite"
	"github.com/evcomx/ragcore/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Backend {
		s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ragcore.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_InMemory(t *testing.T) {
	s, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ragcore.db")

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SaveMemory(ctx, &memory.Entry{TenantID: "acme", Key: "k", Value: "v", UpdatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetMemory(ctx, "acme", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Value)
	assert.Equal(t, path, s.Path())
}
