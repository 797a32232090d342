package bucket

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBucketProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property 1: bucketing is a pure function of its inputs
	properties.Property("same pair always yields same bucket", prop.ForAll(
		func(userID string, experiment string) bool {
			a, err1 := Bucket(userID, experiment)
			b, err2 := Bucket(userID, experiment)
			if err1 != nil || err2 != nil {
				return false
			}
			return a == b
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	// Property 2: every bucket lands in [0,100)
	properties.Property("bucket is always in range", prop.ForAll(
		func(userID string, experiment string) bool {
			b, err := Bucket(userID, experiment)
			if err != nil {
				return false
			}
			return b >= 0 && b < NumBuckets
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	// Property 3: a valid two-way split covers every bucket exactly once
	properties.Property("two-way split partitions all buckets", prop.ForAll(
		func(pct int) bool {
			split := map[string]int{"a": pct, "b": 100 - pct}
			assigner, err := NewAssigner(split)
			if err != nil {
				return false
			}
			countA := 0
			for b := 0; b < NumBuckets; b++ {
				v, err := assigner.Variant(b)
				if err != nil {
					return false
				}
				if v == "a" {
					countA++
				}
			}
			return countA == pct
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
