// Package storage opens the persistence backend that serves every
// tenant-scoped store of the engine.
package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/prompt"
	"github.com/evcomx/ragcore/internal/storage/memstore"
	"github.com/evcomx/ragcore/internal/storage/postgres"
	"github.com/evcomx/ragcore/internal/storage/sqlite"
	"github.com/evcomx/ragcore/internal/tenant"
)

// Drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Backend implements every store interface on one database.
type Backend interface {
	knowledge.Store
	tenant.Store
	memory.Store
	conversation.Store
	prompt.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*memstore.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Config selects and locates the backend.
type Config struct {
	Driver      string `koanf:"driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (Backend, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		b = memstore.New()
	case DriverSQLite:
		b, err = sqlite.Open(ctx, cfg.SQLitePath)
	case DriverPostgres:
		b, err = postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Driver, err)
	}
	logger.Info(ctx, "storage opened", zap.String("driver", cfg.Driver))
	return b, nil
}
