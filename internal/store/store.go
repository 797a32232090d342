package store

import (
	"context"
	"time"
)

// Store defines the interface for remote experiment and assignment
// storage. The store is the single source of truth; it enforces the
// (user_id, experiment_id) uniqueness invariant itself.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error)
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	GetExperimentByID(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context, status ExperimentStatus) ([]*Experiment, error)
	UpdateExperimentStatus(ctx context.Context, name string, status ExperimentStatus, winningVariant *string) error
	UpdateTrafficSplit(ctx context.Context, name string, trafficSplit map[string]int) error
	DeleteExperiment(ctx context.Context, name string) error

	// Assignment operations
	GetAssignment(ctx context.Context, userID, experimentName string) (*VariantAssignment, error)
	CreateAssignment(ctx context.Context, a *VariantAssignment) error
	UpsertAssignment(ctx context.Context, a *VariantAssignment) error
	ListAssignments(ctx context.Context, experimentName string, from, to time.Time) ([]*VariantAssignment, error)

	// Conversion operations
	RecordPurchase(ctx context.Context, userID string, amountCents int64) error
	ListPurchases(ctx context.Context, from, to time.Time) ([]*Purchase, error)

	// Lifecycle
	Close() error
}
