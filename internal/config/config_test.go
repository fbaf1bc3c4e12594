package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.3, cfg.Retrieval.Threshold)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.Reasoning.KnowledgeLimit)
	assert.Equal(t, 5, cfg.Reasoning.HistoryLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9000
  shutdown_timeout: 3s
storage:
  driver: memory
embeddings:
  provider: ollama
  model: nomic-embed-text
chunking:
  size: 500
  overlap: 50
telemetry:
  metrics:
    export_interval: 30s
`, 0o600)
	t.Setenv("RAGCORE_SERVER_HTTP_PORT", "9100")
	t.Setenv("RAGCORE_CHAT_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort, "env overrides the file")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.MinLength, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Telemetry.Metrics.ExportInterval)
	assert.Equal(t, "sk-test", cfg.Chat.APIKey.Value())
	assert.Equal(t, "sk-test", cfg.Completer().APIKey)
}

func TestLoad_MissingDefaultFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RAGCORE_STORAGE_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RAGCORE_STORAGE_DRIVER") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("world writable", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server:\n  http_port: 1\n", 0o666))
		assert.ErrorContains(t, err, "insecure permissions")
	})
	t.Run("too large", func(t *testing.T) {
		big := fmt.Sprintf("# %s\n", string(make([]byte, maxConfigFileSize)))
		_, err := Load(writeConfig(t, big, 0o600))
		assert.ErrorContains(t, err, "too large")
	})
	t.Run("directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "not a regular file")
	})
	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "chunking:\n  size: 100\n  overlap: 100\n", 0o644))
		assert.ErrorContains(t, err, "invalid config")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "http_port"},
		{"overlap >= size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking"},
		{"threshold above 1", func(c *Config) { c.Retrieval.Threshold = 1.5 }, "retrieval.threshold"},
		{"threshold below -1", func(c *Config) { c.Retrieval.Threshold = -2 }, "retrieval.threshold"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "postgres_dsn"},
		{"unknown embeddings provider", func(c *Config) { c.Embeddings.Provider = "cohere" }, "embeddings.provider"},
		{"unknown chat provider", func(c *Config) { c.Chat.Provider = "claude" }, "chat.provider"},
		{"unknown memory backend", func(c *Config) { c.Memory.Backend = "redis" }, "memory.backend"},
		{"bad logging format", func(c *Config) { c.Logging.Format = "xml" }, "logging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	cfg := Default()
	cfg.Storage.Driver = "postgres"
	cfg.Storage.PostgresDSN = "postgres://localhost/rag"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres://localhost/rag", cfg.StorageOptions().PostgresDSN)
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")
	out, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(out))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
	assert.Empty(t, Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
