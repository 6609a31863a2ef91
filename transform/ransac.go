package transform

import (
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereo/utils"
)

// DefaultRANSACIterations is the number of random trials used when none is configured.
const DefaultRANSACIterations = 100

const minimalHomographySample = 4

// RANSACHomography robustly fits a homography to correspondences contaminated with outliers.
type RANSACHomography struct {
	// Iterations is the number of random minimal-sample trials.
	Iterations int
	// InlierThreshold is the maximum transfer error, in destination pixels, of an inlier.
	InlierThreshold float64
	// MinInliers is the smallest inlier set accepted from a trial.
	MinInliers int
	// Rand drives sample selection. A nil Rand is seeded with 1.
	Rand *rand.Rand
}

// Fit returns the homography mapping src onto dst along with the indices of its inliers. The best
// trial is refit on all of its inliers before returning.
func (r *RANSACHomography) Fit(src, dst []r2.Point) (*Homography, []int, error) {
	if len(src) != len(dst) {
		return nil, nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	n := len(src)
	if n < minimalHomographySample {
		return nil, nil, &InsufficientInliersError{Inliers: 0, Required: minimalHomographySample, Points: n}
	}
	iterations := r.Iterations
	if iterations <= 0 {
		iterations = DefaultRANSACIterations
	}
	rng := r.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	sampleSrc := make([]r2.Point, minimalHomographySample)
	sampleDst := make([]r2.Point, minimalHomographySample)
	var bestInliers []int
	for i := 0; i < iterations; i++ {
		for j, idx := range utils.SampleDistinctInts(minimalHomographySample, n, rng) {
			sampleSrc[j] = src[idx]
			sampleDst[j] = dst[idx]
		}
		h, err := EstimateHomography(sampleSrc, sampleDst)
		if err != nil {
			continue
		}
		inliers := r.inliers(h, src, dst)
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
		}
	}
	if len(bestInliers) < r.MinInliers || len(bestInliers) < minimalHomographySample {
		required := r.MinInliers
		if required < minimalHomographySample {
			required = minimalHomographySample
		}
		return nil, nil, &InsufficientInliersError{Inliers: len(bestInliers), Required: required, Points: n}
	}

	inSrc := make([]r2.Point, len(bestInliers))
	inDst := make([]r2.Point, len(bestInliers))
	for i, idx := range bestInliers {
		inSrc[i] = src[idx]
		inDst[i] = dst[idx]
	}
	h, err := EstimateHomography(inSrc, inDst)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to refit homography on inliers")
	}
	return h, r.inliers(h, src, dst), nil
}

func (r *RANSACHomography) inliers(h *Homography, src, dst []r2.Point) []int {
	var out []int
	for i := range src {
		if h.TransferError(src[i], dst[i]) < r.InlierThreshold {
			out = append(out, i)
		}
	}
	return out
}
