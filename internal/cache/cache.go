// Package cache holds the per-device variant cache. It is a speed and
// availability optimization plus an offline fallback, never the source
// of truth: the remote store always wins on divergence.
package cache

import "time"

// KeyPrefix namespaces variant entries inside the key-value store.
const KeyPrefix = "preplab:variant:"

// Key builds the cache key for one user's assignment in one
// experiment. The server shares a single cache across all callers, so
// entries must carry the user scope.
func Key(userID, experimentName string) string {
	return userID + "/" + experimentName
}

// StoredVariant is a cached assignment.
type StoredVariant struct {
	Variant    string    `json:"variant"`
	Bucket     *int      `json:"bucket"`
	AssignedAt time.Time `json:"assignedAt"`
}

// VariantCache is a key-value cache of variant assignments. Keys come
// from Key.
type VariantCache interface {
	// Get returns the stored variant, or (nil, nil) when absent.
	Get(key string) (*StoredVariant, error)
	Put(key string, v StoredVariant) error
	Delete(key string) error
	Close() error
}
