// Package registry owns experiment definitions: creation, validation,
// and the draft -> running -> concluded lifecycle. It is the sole
// writer of experiment records; every read and write goes straight to
// the remote store with no in-process caching.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/preplab/preplab/internal/store"
)

// ValidationError marks a malformed experiment definition or update.
// It is always surfaced to the caller and never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type Registry struct {
	store store.Store
}

func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// CreateInput describes a new experiment. Status defaults to draft.
type CreateInput struct {
	Name         string
	Description  string
	Variants     []string
	TrafficSplit map[string]int
}

func (r *Registry) Create(ctx context.Context, in CreateInput) (*store.Experiment, error) {
	if in.Name == "" {
		return nil, validationErrorf("experiment name is required")
	}
	if len(in.Variants) < 1 {
		return nil, validationErrorf("experiment needs at least 1 variant")
	}

	seen := make(map[string]bool, len(in.Variants))
	for _, v := range in.Variants {
		if v == "" {
			return nil, validationErrorf("variant names must be non-empty")
		}
		if seen[v] {
			return nil, validationErrorf("duplicate variant %q", v)
		}
		seen[v] = true
	}

	if err := validateSplit(in.TrafficSplit, in.Variants); err != nil {
		return nil, err
	}

	return r.store.CreateExperiment(ctx, &store.Experiment{
		Name:         in.Name,
		Description:  in.Description,
		Variants:     in.Variants,
		TrafficSplit: in.TrafficSplit,
		Status:       store.StatusDraft,
	})
}

// Get returns the experiment or (nil, nil) when it does not exist.
// Not-found is an expected outcome on the hot path, not an error.
func (r *Registry) Get(ctx context.Context, name string) (*store.Experiment, error) {
	exp, err := r.store.GetExperiment(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return exp, err
}

// GetByID returns the experiment or (nil, nil) when it does not exist.
func (r *Registry) GetByID(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := r.store.GetExperimentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return exp, err
}

// Exists distinguishes "not found" (false, nil) from storage failure.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	exp, err := r.Get(ctx, name)
	if err != nil {
		return false, err
	}
	return exp != nil, nil
}

// List returns all experiments, optionally filtered by status.
func (r *Registry) List(ctx context.Context, status store.ExperimentStatus) ([]*store.Experiment, error) {
	if status != "" && !store.ValidStatus(status) {
		return nil, validationErrorf("unknown status %q", status)
	}
	return r.store.ListExperiments(ctx, status)
}

// UpdateStatus advances the experiment lifecycle. Allowed transitions
// are draft -> running and running -> concluded; there is no way back
// to draft. Concluding may record a winning variant.
func (r *Registry) UpdateStatus(ctx context.Context, name string, status store.ExperimentStatus, winningVariant *string) error {
	if !store.ValidStatus(status) {
		return validationErrorf("unknown status %q", status)
	}

	exp, err := r.store.GetExperiment(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("experiment %q not found", name)
	}
	if err != nil {
		return err
	}

	if !validTransition(exp.Status, status) {
		return validationErrorf("cannot transition experiment from %s to %s", exp.Status, status)
	}

	if winningVariant != nil && !exp.HasVariant(*winningVariant) {
		return validationErrorf("winning variant %q is not declared on experiment %q", *winningVariant, name)
	}

	return r.store.UpdateExperimentStatus(ctx, name, status, winningVariant)
}

// UpdateTrafficSplit replaces the split. Variants are immutable after
// creation, so the new split's keys must match the existing variant
// set exactly, and the percentages must again sum to 100.
func (r *Registry) UpdateTrafficSplit(ctx context.Context, name string, newSplit map[string]int) error {
	exp, err := r.store.GetExperiment(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("experiment %q not found", name)
	}
	if err != nil {
		return err
	}

	if err := validateSplit(newSplit, exp.Variants); err != nil {
		return err
	}

	return r.store.UpdateTrafficSplit(ctx, name, newSplit)
}

// Delete removes the experiment and its assignments. This is the
// explicit administrative action; nothing else deletes assignments.
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.store.DeleteExperiment(ctx, name)
}

func validateSplit(split map[string]int, variants []string) error {
	if len(split) != len(variants) {
		return validationErrorf("traffic split has %d entries, experiment has %d variants", len(split), len(variants))
	}

	total := 0
	for _, v := range variants {
		pct, ok := split[v]
		if !ok {
			return validationErrorf("traffic split is missing variant %q", v)
		}
		if pct < 0 {
			return validationErrorf("traffic split percentage for %q is negative", v)
		}
		total += pct
	}
	if total != 100 {
		return validationErrorf("traffic split must sum to 100, got %d", total)
	}
	return nil
}

func validTransition(from, to store.ExperimentStatus) bool {
	switch from {
	case store.StatusDraft:
		return to == store.StatusRunning
	case store.StatusRunning:
		return to == store.StatusConcluded
	default:
		return false
	}
}
