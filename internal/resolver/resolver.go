// Package resolver decides the definitive variant for a user by
// reconciling three tiers: the local cache, the remote store, and a
// freshly calculated bucket. Precedence is cache on the hot path,
// remote record as the source of truth, local calculation as the
// fallback when the remote store is unreachable.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/preplab/preplab/internal/bucket"
	"github.com/preplab/preplab/internal/cache"
	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

var (
	ErrExperimentNotFound  = errors.New("experiment not found")
	ErrExperimentDraft     = errors.New("experiment is in draft status")
	ErrExperimentConcluded = errors.New("experiment is concluded, no new assignments")
)

// DefaultRemoteTimeout bounds every synchronous remote call.
const DefaultRemoteTimeout = 3 * time.Second

// Resolution is the answer to a variant lookup.
type Resolution struct {
	Variant string                 `json:"variant"`
	Source  store.AssignmentSource `json:"source"`
	Bucket  *int                   `json:"bucket,omitempty"`
	IsNew   bool                   `json:"isNew"`
}

type Config struct {
	// RemoteTimeout bounds synchronous store/registry calls. Zero
	// means DefaultRemoteTimeout.
	RemoteTimeout time.Duration
	// DisableSync turns off the background cache-to-remote
	// reconciliation that runs after local cache hits.
	DisableSync bool
}

type Resolver struct {
	registry *registry.Registry
	store    store.Store
	cache    cache.VariantCache
	logger   *zap.Logger

	remoteTimeout time.Duration
	syncEnabled   bool

	// Experiment definitions seen on previous successful lookups,
	// kept so a remote outage can still be answered locally.
	mu        sync.RWMutex
	lastKnown map[string]*store.Experiment

	syncWG sync.WaitGroup
}

func New(reg *registry.Registry, st store.Store, vc cache.VariantCache, logger *zap.Logger, cfg Config) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	return &Resolver{
		registry:      reg,
		store:         st,
		cache:         vc,
		logger:        logger,
		remoteTimeout: timeout,
		syncEnabled:   !cfg.DisableSync,
		lastKnown:     make(map[string]*store.Experiment),
	}
}

// GetVariant resolves the variant for (userID, experimentName).
//
// Outcomes by experiment status and assignment existence:
//
//	draft      × any  -> error, no assignment minted
//	running    × yes  -> existing assignment
//	running    × no   -> compute + persist new
//	concluded  × yes  -> existing assignment
//	concluded  × no   -> error
func (r *Resolver) GetVariant(ctx context.Context, userID, experimentName string) (Resolution, error) {
	if userID == "" {
		return Resolution{}, bucket.ErrEmptyUserID
	}
	if experimentName == "" {
		return Resolution{}, bucket.ErrEmptyExperiment
	}

	// 1. Local cache: answer immediately, reconcile in the background.
	key := cache.Key(userID, experimentName)
	cached, err := r.cache.Get(key)
	if err != nil {
		r.logger.Warn("variant cache read failed",
			zap.String("experiment", experimentName), zap.Error(err))
	}
	if cached != nil {
		if r.syncEnabled && r.store != nil {
			r.goSync(userID, experimentName, *cached)
		}
		resolutionsTotal.WithLabelValues(string(store.SourceLocalCache)).Inc()
		return Resolution{
			Variant: cached.Variant,
			Source:  store.SourceLocalCache,
			Bucket:  cached.Bucket,
		}, nil
	}

	// 2. Remote lookup of the experiment definition.
	rctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	defer cancel()

	exp, err := r.registry.Get(rctx, experimentName)
	if err != nil {
		return r.fallbackLocal(userID, experimentName, err)
	}
	if exp == nil {
		return Resolution{}, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentName)
	}
	r.remember(exp)

	if exp.Status == store.StatusDraft {
		return Resolution{}, fmt.Errorf("%w: %s", ErrExperimentDraft, experimentName)
	}

	// 3. Existing remote assignment wins.
	existing, err := r.store.GetAssignment(rctx, userID, experimentName)
	if err == nil {
		r.cachePut(key, cache.StoredVariant{
			Variant:    existing.Variant,
			Bucket:     existing.Bucket,
			AssignedAt: existing.AssignedAt,
		})
		resolutionsTotal.WithLabelValues(string(store.SourceRemote)).Inc()
		return Resolution{
			Variant: existing.Variant,
			Source:  store.SourceRemote,
			Bucket:  existing.Bucket,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return r.fallbackLocal(userID, experimentName, err)
	}

	// 4. No assignment yet.
	if exp.Status == store.StatusConcluded {
		return Resolution{}, fmt.Errorf("%w: %s", ErrExperimentConcluded, experimentName)
	}

	b, err := bucket.Bucket(userID, experimentName)
	if err != nil {
		return Resolution{}, err
	}
	variant, err := bucket.AssignVariantFromSplit(b, exp.TrafficSplit)
	if err != nil {
		return Resolution{}, fmt.Errorf("experiment %s has an unusable traffic split: %w", experimentName, err)
	}

	assignment := &store.VariantAssignment{
		UserID:         userID,
		ExperimentID:   exp.ID,
		ExperimentName: experimentName,
		Variant:        variant,
		Bucket:         &b,
		Source:         store.SourceCalculated,
		AssignedAt:     time.Now(),
	}

	err = r.store.CreateAssignment(rctx, assignment)
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent writer won the race; their assignment is the
		// definitive one.
		winner, werr := r.store.GetAssignment(rctx, userID, experimentName)
		if werr != nil {
			return r.fallbackLocal(userID, experimentName, werr)
		}
		r.cachePut(key, cache.StoredVariant{
			Variant:    winner.Variant,
			Bucket:     winner.Bucket,
			AssignedAt: winner.AssignedAt,
		})
		resolutionsTotal.WithLabelValues(string(store.SourceRemote)).Inc()
		return Resolution{
			Variant: winner.Variant,
			Source:  store.SourceRemote,
			Bucket:  winner.Bucket,
		}, nil
	}
	if err != nil {
		// The variant is already deterministically computed; losing
		// the write does not change the answer, only its durability.
		r.logger.Warn("assignment write failed, serving local calculation",
			zap.String("experiment", experimentName), zap.Error(err))
		fallbacksTotal.Inc()
	}

	r.cachePut(key, cache.StoredVariant{
		Variant:    variant,
		Bucket:     &b,
		AssignedAt: assignment.AssignedAt,
	})
	resolutionsTotal.WithLabelValues(string(store.SourceCalculated)).Inc()
	return Resolution{
		Variant: variant,
		Source:  store.SourceCalculated,
		Bucket:  &b,
		IsNew:   true,
	}, nil
}

// ForceAssign bypasses bucketing and pins the user to variant. The
// variant must be declared on the experiment. Forced assignments carry
// no bucket and win future lookups like any existing assignment.
func (r *Resolver) ForceAssign(ctx context.Context, userID, experimentName, variant string) (Resolution, error) {
	if userID == "" {
		return Resolution{}, bucket.ErrEmptyUserID
	}
	if experimentName == "" {
		return Resolution{}, bucket.ErrEmptyExperiment
	}

	rctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	defer cancel()

	exp, err := r.registry.Get(rctx, experimentName)
	if err != nil {
		return Resolution{}, err
	}
	if exp == nil {
		return Resolution{}, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentName)
	}
	if !exp.HasVariant(variant) {
		return Resolution{}, &registry.ValidationError{
			Msg: fmt.Sprintf("variant %q is not declared on experiment %q", variant, experimentName),
		}
	}

	now := time.Now()
	err = r.store.UpsertAssignment(rctx, &store.VariantAssignment{
		UserID:         userID,
		ExperimentID:   exp.ID,
		ExperimentName: experimentName,
		Variant:        variant,
		Bucket:         nil,
		Source:         store.SourceForced,
		AssignedAt:     now,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to force assignment: %w", err)
	}

	r.cachePut(cache.Key(userID, experimentName), cache.StoredVariant{
		Variant:    variant,
		AssignedAt: now,
	})
	resolutionsTotal.WithLabelValues(string(store.SourceForced)).Inc()
	return Resolution{
		Variant: variant,
		Source:  store.SourceForced,
		IsNew:   true,
	}, nil
}

// fallbackLocal answers a lookup from local knowledge after a remote
// failure. The failure is logged, never propagated; only when no local
// experiment definition exists is there truly nothing to serve.
func (r *Resolver) fallbackLocal(userID, experimentName string, cause error) (Resolution, error) {
	r.logger.Warn("remote store unavailable, falling back to local calculation",
		zap.String("experiment", experimentName),
		zap.String("user", userID),
		zap.Error(cause))
	fallbacksTotal.Inc()

	exp := r.recall(experimentName)
	if exp == nil {
		return Resolution{}, fmt.Errorf("experiment %s unavailable: %w", experimentName, cause)
	}

	b, err := bucket.Bucket(userID, experimentName)
	if err != nil {
		return Resolution{}, err
	}
	variant, err := bucket.AssignVariantFromSplit(b, exp.TrafficSplit)
	if err != nil {
		return Resolution{}, err
	}

	r.cachePut(cache.Key(userID, experimentName), cache.StoredVariant{
		Variant:    variant,
		Bucket:     &b,
		AssignedAt: time.Now(),
	})
	resolutionsTotal.WithLabelValues(string(store.SourceCalculated)).Inc()
	return Resolution{
		Variant: variant,
		Source:  store.SourceCalculated,
		Bucket:  &b,
		IsNew:   true,
	}, nil
}

// goSync reconciles a cache hit with the remote store without blocking
// the caller. The remote record wins: on divergence the cache is
// rewritten from remote. A local-only entry is pushed up but never
// overwrites an existing remote row.
func (r *Resolver) goSync(userID, experimentName string, local cache.StoredVariant) {
	r.syncWG.Add(1)
	go func() {
		defer r.syncWG.Done()

		key := cache.Key(userID, experimentName)
		ctx, cancel := context.WithTimeout(context.Background(), r.remoteTimeout)
		defer cancel()

		remote, err := r.store.GetAssignment(ctx, userID, experimentName)
		if err == nil {
			if remote.Variant != local.Variant {
				r.cachePut(key, cache.StoredVariant{
					Variant:    remote.Variant,
					Bucket:     remote.Bucket,
					AssignedAt: remote.AssignedAt,
				})
			}
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("background sync read failed",
				zap.String("experiment", experimentName), zap.Error(err))
			syncFailuresTotal.Inc()
			return
		}

		// Local-only entry: push it up. CreateAssignment refuses to
		// overwrite, so a concurrent remote write stays authoritative.
		exp, err := r.registry.Get(ctx, experimentName)
		if err != nil || exp == nil {
			syncFailuresTotal.Inc()
			return
		}
		err = r.store.CreateAssignment(ctx, &store.VariantAssignment{
			UserID:         userID,
			ExperimentID:   exp.ID,
			ExperimentName: experimentName,
			Variant:        local.Variant,
			Bucket:         local.Bucket,
			Source:         store.SourceCalculated,
			AssignedAt:     local.AssignedAt,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			r.logger.Debug("background sync write failed",
				zap.String("experiment", experimentName), zap.Error(err))
			syncFailuresTotal.Inc()
		}
	}()
}

// WaitSync blocks until in-flight background reconciliations finish.
// Intended for tests and graceful shutdown.
func (r *Resolver) WaitSync() {
	r.syncWG.Wait()
}

func (r *Resolver) cachePut(key string, v cache.StoredVariant) {
	if err := r.cache.Put(key, v); err != nil {
		r.logger.Warn("variant cache write failed",
			zap.String("key", key), zap.Error(err))
	}
}

func (r *Resolver) remember(exp *store.Experiment) {
	r.mu.Lock()
	r.lastKnown[exp.Name] = exp
	r.mu.Unlock()
}

func (r *Resolver) recall(name string) *store.Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastKnown[name]
}
