package cmd

import (
	"path/filepath"

	"github.com/levelcode/teamfabric/internal/config"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/maintenance"
	"github.com/levelcode/teamfabric/internal/status"
	"github.com/levelcode/teamfabric/internal/store"
)

// openStore opens the fabric store at the configured root. The returned
// logger is either a file logger under <root>/logs or a no-op, depending
// on the logging config; callers should Close it when done.
func openStore() (*store.Store, *config.Config, *logging.Logger, error) {
	cfg := config.Get()
	logger := newLogger(cfg)

	st, err := store.New(cfg.ResolveRoot(),
		store.WithLogger(logger),
		store.WithLockTimeout(cfg.LockTimeout()),
		store.WithStaleLockTimeout(cfg.LockStale()),
	)
	if err != nil {
		_ = logger.Close()
		return nil, nil, nil, err
	}
	return st, cfg, logger, nil
}

// newLogger builds the command logger from config. Failures to open the
// log file degrade to a no-op logger rather than blocking the command.
func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(filepath.Join(cfg.ResolveRoot(), "logs"), cfg.Logging.Level)
	if err != nil {
		return logging.NopLogger()
	}
	return logger
}

// newEngine builds the maintenance engine over the store.
func newEngine(st *store.Store, logger *logging.Logger) *maintenance.Engine {
	return maintenance.New(st, maintenance.WithLogger(logger))
}

// newBuilder builds the status report builder over the store.
func newBuilder(st *store.Store, logger *logging.Logger) *status.Builder {
	return status.NewBuilder(st, newEngine(st, logger))
}
