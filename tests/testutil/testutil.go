package testutil

import (
	"context"
	"testing"

	"github.com/preplab/preplab/internal/store"
)

// SetupTestStore creates a test database and returns the store with a
// cleanup function. Uses t.TempDir() for automatic cleanup on test
// completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// SeedExperiment inserts an experiment in the given status directly
// through the store, bypassing registry validation.
func SeedExperiment(t *testing.T, s *store.SQLiteStore, name string, variants []string, split map[string]int, status store.ExperimentStatus) *store.Experiment {
	t.Helper()

	exp, err := s.CreateExperiment(context.Background(), &store.Experiment{
		Name:         name,
		Variants:     variants,
		TrafficSplit: split,
		Status:       status,
	})
	if err != nil {
		t.Fatalf("failed to seed experiment %s: %v", name, err)
	}
	return exp
}
