package ipmatch

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/transform"
	"go.viam.com/stereo/vision/keypoints"
)

// HomographyConfig contains the parameters of the robust homography fit.
type HomographyConfig struct {
	// Iterations is the number of random sample consensus trials. Zero uses the default.
	Iterations int `json:"ransac_iterations,omitempty" yaml:"ransac_iterations,omitempty"`
	// Seed makes the fit reproducible when set.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *HomographyConfig) Validate(path string) error {
	if cfg.Iterations < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("ransac_iterations cannot be negative, got %d", cfg.Iterations))
	}
	return nil
}

func (cfg *HomographyConfig) options() []Option {
	if cfg == nil {
		return nil
	}
	opts := []Option{WithIterations(cfg.Iterations)}
	if cfg.Seed != nil {
		opts = append(opts, WithSeed(*cfg.Seed))
	}
	return opts
}

// FilterConfig controls geometric filtering of matches before the homography fit.
type FilterConfig struct {
	// Disabled skips geometric filtering.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Strict fails alignment with ErrClusteringUnreliable instead of continuing with the
	// unfiltered matches.
	Strict bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// AlignmentConfig contains every stage of matching with alignment.
type AlignmentConfig struct {
	Matching   *keypoints.MatchingConfig `json:"matching,omitempty" yaml:"matching,omitempty"`
	Homography *HomographyConfig         `json:"homography,omitempty" yaml:"homography,omitempty"`
	Filter     *FilterConfig             `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// DefaultAlignmentConfig returns the default alignment parameters.
func DefaultAlignmentConfig() *AlignmentConfig {
	return &AlignmentConfig{
		Matching:   keypoints.DefaultMatchingConfig(),
		Homography: &HomographyConfig{Iterations: transform.DefaultRANSACIterations},
		Filter:     &FilterConfig{},
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *AlignmentConfig) Validate(path string) error {
	if cfg.Matching != nil {
		if err := cfg.Matching.Validate(path + ".matching"); err != nil {
			return err
		}
	}
	if cfg.Homography != nil {
		if err := cfg.Homography.Validate(path + ".homography"); err != nil {
			return err
		}
	}
	return nil
}

// withDefaults fills in missing sections.
func (cfg *AlignmentConfig) withDefaults() *AlignmentConfig {
	out := DefaultAlignmentConfig()
	if cfg == nil {
		return out
	}
	if cfg.Matching != nil {
		out.Matching = cfg.Matching
	}
	if cfg.Homography != nil {
		out.Homography = cfg.Homography
	}
	if cfg.Filter != nil {
		out.Filter = cfg.Filter
	}
	return out
}

// AlignmentInput is one image pair to match and align. Interest points are in processed image
// coordinates and the transforms map them back to raw camera pixels.
type AlignmentInput struct {
	Name           string
	Left, Right    []keypoints.InterestPoint
	LeftCamera     camera.Model
	RightCamera    camera.Model
	LeftTransform  camera.PixelTransform
	RightTransform camera.PixelTransform
	// LeftBounds and RightBounds are the extents of the processed images. RightBounds is only
	// needed to bootstrap a homography.
	LeftBounds  image.Rectangle
	RightBounds image.Rectangle
	Datum       cartography.Datum
	Progress    keypoints.ProgressFunc
}

// AlignmentResult is the outcome of matching with alignment.
type AlignmentResult struct {
	// Matches is the raw epipolar matching result, indexed by left interest point.
	Matches keypoints.MatchResult
	// Filter is nil when geometric filtering is disabled.
	Filter *GeometryFilterResult
	// Left and Right are the matched pairs kept after filtering, and Indices their left interest
	// point indices.
	Left, Right []keypoints.InterestPoint
	Indices     []int
	// Homography maps processed right image pixels to processed left image pixels.
	Homography        *transform.Homography
	HomographyInliers []int
}

// MatchWithAlignment matches the pair under the epipolar constraint, drops matches whose
// triangulated geometry is inconsistent and fits the homography that aligns the right image to
// the left one. When clustering cannot separate inliers the unfiltered matches are used unless the
// filter is strict.
func MatchWithAlignment(ctx context.Context, in AlignmentInput, cfg *AlignmentConfig, opts ...Option) (*AlignmentResult, error) {
	cfg = cfg.withDefaults()
	return matchWithAlignment(ctx, in, cfg, newOptions(append(cfg.Homography.options(), opts...)))
}

func matchWithAlignment(ctx context.Context, in AlignmentInput, cfg *AlignmentConfig, o *options) (*AlignmentResult, error) {
	matches, err := computeMatches(ctx, in.Left, in.Right, in.LeftCamera, in.RightCamera,
		in.LeftTransform, in.RightTransform, in.Datum, cfg.Matching, in.Progress, o)
	if err != nil {
		return nil, err
	}
	res := &AlignmentResult{Matches: matches}
	res.Left, res.Right, res.Indices = keypoints.MatchedPairs(matches, in.Left, in.Right)
	o.logger.Infow("matched interest points", "left", len(in.Left), "right", len(in.Right), "matched", len(res.Left))

	if !cfg.Filter.Disabled {
		res.Filter, err = filterByGeometry(ctx, res.Left, res.Right, in.LeftCamera, in.RightCamera,
			in.Datum, in.LeftTransform, in.RightTransform, o)
		if err != nil {
			return nil, err
		}
		switch {
		case res.Filter.Success:
			res.Left = pick(res.Left, res.Filter.Inliers)
			res.Right = pick(res.Right, res.Filter.Inliers)
			res.Indices = pick(res.Indices, res.Filter.Inliers)
			o.logger.Infow("filtered matches by geometry", "kept", len(res.Left))
		case cfg.Filter.Strict:
			return nil, ErrClusteringUnreliable
		default:
			o.logger.Warnw("geometry filter could not separate inliers, keeping all matches",
				"matched", len(res.Left))
		}
	}

	res.Homography, res.HomographyInliers, err = fitHomography(
		keypoints.Points(res.Right), keypoints.Points(res.Left), in.LeftBounds, o)
	if err != nil {
		return nil, errors.Wrap(err, "aligning right image to left")
	}
	return res, nil
}

func pick[T any](items []T, indices []int) []T {
	out := make([]T, len(indices))
	for k, i := range indices {
		out[k] = items[i]
	}
	return out
}

// MatchPairs runs MatchWithAlignment on independent image pairs concurrently, at most limit at
// a time when limit is positive. Results are indexed like pairs; a failed pair has a nil result
// and its error is combined into the returned error. A seed, if set, is offset by the pair index.
func MatchPairs(ctx context.Context, pairs []AlignmentInput, cfg *AlignmentConfig, limit int, opts ...Option) ([]*AlignmentResult, error) {
	cfg = cfg.withDefaults()
	o := newOptions(append(cfg.Homography.options(), opts...))

	results := make([]*AlignmentResult, len(pairs))
	errs := make([]error, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range pairs {
		i := i
		g.Go(func() error {
			name := pairs[i].Name
			if name == "" {
				name = fmt.Sprintf("pair%d", i)
			}
			po := o.withOffset(int64(i))
			po.logger = o.logger.Sublogger(name)
			res, err := matchWithAlignment(gctx, pairs[i], cfg, po)
			if err != nil {
				errs[i] = errors.Wrapf(err, "pair %q", name)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, multierr.Combine(errs...)
}
