// Package store selects the task.Store adapter named by configuration.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"georemind/internal/domain/task"
	"georemind/internal/infra/filestore"
	"georemind/internal/infra/store/docstore"
	"georemind/internal/infra/store/postgresstore"
	"georemind/internal/shared/config"
	"georemind/internal/shared/logging"
)

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Open builds the configured store, ensures its schema and returns a
// release function for any pooled resources.
func Open(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (task.Store, func(), error) {
	logger = logging.OrNop(logger)
	noop := func() {}

	var (
		s       task.Store
		release = noop
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverMemory:
		s = docstore.NewMemory(docstore.WithLogger(logger))
	case DriverFile:
		dir := filestore.ResolvePath(cfg.Dir, "~/.georemind")
		fs, err := docstore.OpenFile(filepath.Join(dir, docstore.DefaultFileName), docstore.WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}
		s = fs
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, noop, fmt.Errorf("store driver postgres requires store.database_url")
		}
		ps, pool, err := postgresstore.Open(ctx, cfg.DatabaseURL, postgresstore.WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}
		s = ps
		release = pool.Close
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", driver)
	}

	if err := s.EnsureSchema(ctx); err != nil {
		release()
		return nil, noop, fmt.Errorf("ensure store schema: %w", err)
	}
	logger.Info("Task store ready (driver=%s)", storeDriverName(cfg.Driver))
	return s, release, nil
}

func storeDriverName(driver string) string {
	if strings.TrimSpace(driver) == "" {
		return DriverMemory
	}
	return driver
}
