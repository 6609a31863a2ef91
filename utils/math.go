package utils

import (
	"math/rand"
)

// SampleRandomIntRange samples a random integer within a range given by [min, max]
// using the given rand.Rand.
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

// SampleDistinctInts draws n distinct integers from [0, total) using the given rand.Rand.
// It returns nil when n > total.
func SampleDistinctInts(n, total int, r *rand.Rand) []int {
	if n > total {
		return nil
	}
	picked := make(map[int]struct{}, n)
	out := make([]int, 0, n)
	for len(out) < n {
		idx := SampleRandomIntRange(0, total-1, r)
		if _, ok := picked[idx]; ok {
			continue
		}
		picked[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

// GridCoordinate returns the i-th of n evenly spaced coordinates spanning [0, extent-1].
// With n == 1 the single sample sits at 0.
func GridCoordinate(extent, i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(extent-1) * float64(i) / float64(n-1)
}
