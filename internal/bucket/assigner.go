package bucket

import (
	"fmt"
	"sort"
)

// Assigner partitions [0,100) into contiguous per-variant ranges. The
// ranges are laid out in lexicographic variant-name order so that two
// processes given the same traffic split always draw the same
// boundaries regardless of map iteration order.
type Assigner struct {
	variants   []string // sorted
	boundaries []int    // cumulative upper bounds, exclusive
}

// NewAssigner validates the split and builds the partition. The
// percentages must be non-negative integers summing to exactly 100.
func NewAssigner(trafficSplit map[string]int) (*Assigner, error) {
	if len(trafficSplit) == 0 {
		return nil, fmt.Errorf("traffic split must not be empty")
	}

	variants := make([]string, 0, len(trafficSplit))
	total := 0
	for name, pct := range trafficSplit {
		if pct < 0 {
			return nil, fmt.Errorf("traffic split percentage for %q is negative", name)
		}
		variants = append(variants, name)
		total += pct
	}
	if total != 100 {
		return nil, fmt.Errorf("traffic split must sum to 100, got %d", total)
	}
	sort.Strings(variants)

	boundaries := make([]int, len(variants))
	cum := 0
	for i, name := range variants {
		cum += trafficSplit[name]
		boundaries[i] = cum
	}

	return &Assigner{variants: variants, boundaries: boundaries}, nil
}

// Variant returns the variant whose range contains b.
func (a *Assigner) Variant(b int) (string, error) {
	if b < 0 || b >= NumBuckets {
		return "", fmt.Errorf("bucket %d out of range [0,%d)", b, NumBuckets)
	}
	for i, upper := range a.boundaries {
		if b < upper {
			return a.variants[i], nil
		}
	}
	// Zero-percent tail ranges can leave the last boundary at 100;
	// anything below NumBuckets has matched by now.
	return a.variants[len(a.variants)-1], nil
}

// AssignVariantFromSplit is the one-shot form: build the partition and
// place the bucket in it.
func AssignVariantFromSplit(b int, trafficSplit map[string]int) (string, error) {
	a, err := NewAssigner(trafficSplit)
	if err != nil {
		return "", err
	}
	return a.Variant(b)
}
