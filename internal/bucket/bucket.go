// Package bucket maps users into deterministic experiment buckets and
// partitions those buckets into variants according to a traffic split.
package bucket

import (
	"errors"
	"strconv"

	"github.com/preplab/preplab/internal/digest"
)

const NumBuckets = 100

var (
	ErrEmptyUserID     = errors.New("bucket: userID must be a non-empty string")
	ErrEmptyExperiment = errors.New("bucket: experimentName must be a non-empty string")
)

// Bucket returns an integer in [0,100) derived from the user/experiment
// pair. The mapping is stable across processes and over time: the same
// pair always lands in the same bucket, which is what keeps a user's
// experiment membership deterministic without any storage.
func Bucket(userID, experimentName string) (int, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}
	if experimentName == "" {
		return 0, ErrEmptyExperiment
	}

	// userID then experimentName, no delimiter. The concatenation order
	// is part of the contract: existing assignments depend on it.
	sum := digest.SumString(userID + experimentName)

	// First 8 hex chars are 32 bits of the digest.
	n, err := strconv.ParseUint(sum[:8], 16, 32)
	if err != nil {
		// Unreachable: the digest is always valid hex.
		return 0, err
	}
	return int(n % NumBuckets), nil
}
