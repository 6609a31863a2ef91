package keypoints

import (
	"context"
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/transform"
)

// ErrCancelled is returned when matching stops because its context is done. The returned error
// also wraps the context's error.
var ErrCancelled = errors.New("matching cancelled")

// Default matching parameters.
const (
	DefaultEpipolarThreshold = 10.0
	DefaultRatioThreshold    = 0.8
	DefaultNumNeighbors      = 10
)

// MatchingConfig contains the parameters for matching descriptors under an epipolar constraint.
type MatchingConfig struct {
	// EpipolarThreshold is the largest distance, in raw image-2 pixels, between a candidate and
	// the epipolar line of the feature it would match.
	EpipolarThreshold float64 `json:"epipolar_threshold_px" yaml:"epipolar_threshold_px"`
	// RatioThreshold is the largest accepted ratio between the best and second best descriptor
	// distances.
	RatioThreshold float64 `json:"ratio_threshold" yaml:"ratio_threshold"`
	// NumNeighbors is the number of descriptor neighbors considered per feature.
	NumNeighbors int `json:"num_neighbors" yaml:"num_neighbors"`
}

// DefaultMatchingConfig returns the default matching parameters.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		EpipolarThreshold: DefaultEpipolarThreshold,
		RatioThreshold:    DefaultRatioThreshold,
		NumNeighbors:      DefaultNumNeighbors,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *MatchingConfig) Validate(path string) error {
	if cfg.EpipolarThreshold <= 0 {
		return utils.NewConfigValidationError(path, errors.New("epipolar_threshold_px must be positive"))
	}
	if cfg.RatioThreshold <= 0 || cfg.RatioThreshold > 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("ratio_threshold must be in (0, 1], got %v", cfg.RatioThreshold))
	}
	if cfg.NumNeighbors < 1 {
		return utils.NewConfigValidationError(path, errors.New("num_neighbors must be at least 1"))
	}
	return nil
}

// ProgressFunc is called once for every first-image feature processed.
type ProgressFunc func()

// EpipolarMatcher matches interest points between two images. Candidates come from descriptor
// nearest neighbors and must lie near the epipolar line of the feature, then pass a ratio test.
type EpipolarMatcher struct {
	Config *MatchingConfig
	Datum  cartography.Datum
	Logger logging.Logger
}

// NewEpipolarMatcher returns a matcher. A nil config uses the defaults.
func NewEpipolarMatcher(cfg *MatchingConfig, datum cartography.Datum, logger logging.Logger) (*EpipolarMatcher, error) {
	if cfg == nil {
		cfg = DefaultMatchingConfig()
	}
	if err := cfg.Validate("matching"); err != nil {
		return nil, err
	}
	if err := datum.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("matching")
	}
	return &EpipolarMatcher{Config: cfg, Datum: datum, Logger: logger}, nil
}

// Match returns, for each interest point of ip1, the index of its match in ip2 or NoMatch.
// Interest point locations are in processed image coordinates; tx1 and tx2 map them back to raw
// camera pixels. Features whose epipolar line falls outside the camera geometry get NoMatch. The
// context is checked before each feature and progress, if set, is called after each one. With either
// list empty there is nothing to match: every ip1 entry is NoMatch and neither the context nor
// progress is consulted.
func (m *EpipolarMatcher) Match(
	ctx context.Context,
	ip1, ip2 []InterestPoint,
	cam1, cam2 camera.Model,
	tx1, tx2 camera.PixelTransform,
	progress ProgressFunc,
) (MatchResult, error) {
	tx1, tx2 = camera.OrIdentity(tx1), camera.OrIdentity(tx2)
	result := NewMatchResult(len(ip1))
	if len(ip1) == 0 || len(ip2) == 0 {
		return result, nil
	}

	index, err := NewDescriptorIndex(ip2)
	if err != nil {
		return nil, err
	}
	raw2 := make([]r2.Point, len(ip2))
	for j, ip := range ip2 {
		raw2[j] = tx2.Reverse(ip.Point())
	}

	var misses, noCandidates, ambiguous int
	for i, ip := range ip1 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d of %d features: %w", ErrCancelled, i, len(ip1), err)
		}

		match, outcome, err := m.matchOne(ip, index, raw2, cam1, cam2, tx1)
		if err != nil {
			return nil, errors.Wrapf(err, "matching feature %d", i)
		}
		result[i] = match
		switch outcome {
		case outcomeGeometryMiss:
			misses++
		case outcomeNoCandidates:
			noCandidates++
		case outcomeAmbiguous:
			ambiguous++
		case outcomeMatched:
		}
		if progress != nil {
			progress()
		}
	}

	m.Logger.CDebugw(ctx, "epipolar matching done",
		"features", len(ip1),
		"candidates", len(ip2),
		"matched", result.Count(),
		"geometry_misses", misses,
		"no_candidates", noCandidates,
		"ambiguous", ambiguous,
	)
	return result, nil
}

type matchOutcome int

const (
	outcomeMatched matchOutcome = iota
	outcomeGeometryMiss
	outcomeNoCandidates
	outcomeAmbiguous
)

func (m *EpipolarMatcher) matchOne(
	ip InterestPoint,
	index *DescriptorIndex,
	raw2 []r2.Point,
	cam1, cam2 camera.Model,
	tx1 camera.PixelTransform,
) (int, matchOutcome, error) {
	if index.Len() == 0 {
		return NoMatch, outcomeNoCandidates, nil
	}
	line, err := transform.EpipolarLine(tx1.Reverse(ip.Point()), m.Datum, cam1, cam2)
	if err != nil {
		if camera.IsGeometryMiss(err) || errors.Is(err, transform.ErrDegenerateLine) {
			return NoMatch, outcomeGeometryMiss, nil
		}
		return NoMatch, outcomeGeometryMiss, err
	}

	neighbors, err := index.Nearest(ip.Descriptor, m.Config.NumNeighbors)
	if err != nil {
		return NoMatch, outcomeNoCandidates, err
	}
	survivors := make([]Neighbor, 0, 2)
	for _, n := range neighbors {
		if transform.DistancePointLine(line, raw2[n.Index]) < m.Config.EpipolarThreshold {
			survivors = append(survivors, n)
		}
	}

	switch {
	case len(survivors) == 0:
		return NoMatch, outcomeNoCandidates, nil
	case len(survivors) == 1:
		return survivors[0].Index, outcomeMatched, nil
	case survivors[0].Distance < m.Config.RatioThreshold*survivors[1].Distance:
		return survivors[0].Index, outcomeMatched, nil
	default:
		return NoMatch, outcomeAmbiguous, nil
	}
}
