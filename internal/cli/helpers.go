package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

// withStore opens the database, runs fn, and always closes the store.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()
	return fn(s)
}

// withRegistry is withStore plus a registry over the same store.
func withRegistry(fn func(*store.SQLiteStore, *registry.Registry) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		return fn(s, registry.New(s))
	})
}

// newLogger builds a production zap logger at the given level.
// Unknown levels fall back to info.
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl
	return cfg.Build()
}
