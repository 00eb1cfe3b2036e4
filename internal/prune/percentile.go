// Package prune removes low-signal links, edges and nodes before export.
package prune

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrEmpty is returned when a percentile is requested over no values.
	ErrEmpty = errors.New("no values")

	// ErrPercentileRange is returned for a percentile outside [0, 100].
	ErrPercentileRange = errors.New("percentile must be within [0, 100]")
)

// CheckPercentile validates a percentile parameter
func CheckPercentile(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("%w: got %v", ErrPercentileRange, p)
	}
	return nil
}

// Percentile computes the p-th percentile of values using linear
// interpolation between the two closest ranks. The input is not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if err := CheckPercentile(p); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrEmpty
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo)), nil
}
