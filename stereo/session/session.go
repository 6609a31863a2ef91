// Package session defines stereo sessions. A session pairs a camera model family with the
// alignment methods and datum it supports, and turns the interest points of two images into an
// alignment of the right image onto the left.
package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/stereo/ipmatch"
	"go.viam.com/stereo/transform"
)

// AlignmentMethod names how the right image is brought into the frame of the left.
type AlignmentMethod string

// The known alignment methods.
const (
	AlignHomography = AlignmentMethod("homography")
	AlignEpipolar   = AlignmentMethod("epipolar")
	AlignNone       = AlignmentMethod("none")
)

// Known returns whether the method is one of the known alignment methods.
func (m AlignmentMethod) Known() bool {
	switch m {
	case AlignHomography, AlignEpipolar, AlignNone:
		return true
	default:
		return false
	}
}

// Config describes a stereo session.
type Config struct {
	AlignmentMethod AlignmentMethod `json:"alignment_method,omitempty" yaml:"alignment_method,omitempty"`
	// TargetRadii are the equatorial, equatorial and polar radii of the observed body in meters.
	TargetRadii []float64 `json:"target_radii,omitempty" yaml:"target_radii,omitempty"`

	// Datum overrides the default datum of sessions that do not derive one from their cameras.
	Datum *cartography.Datum `json:"-" yaml:"-"`
	// Alignment configures matching and the homography fit. Nil uses the defaults.
	Alignment *ipmatch.AlignmentConfig `json:"-" yaml:"-"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.AlignmentMethod != "" && !cfg.AlignmentMethod.Known() {
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown alignment_method %q", cfg.AlignmentMethod))
	}
	if len(cfg.TargetRadii) != 0 {
		if len(cfg.TargetRadii) != 3 {
			return utils.NewConfigValidationError(path,
				errors.Errorf("target_radii needs 3 values, got %d", len(cfg.TargetRadii)))
		}
		for _, r := range cfg.TargetRadii {
			if r <= 0 {
				return utils.NewConfigValidationError(path, errors.Errorf("target_radii must be positive, got %v", cfg.TargetRadii))
			}
		}
	}
	if cfg.Alignment != nil {
		return cfg.Alignment.Validate(path)
	}
	return nil
}

// UnsupportedAlignmentError is returned when a session type cannot align with a method.
type UnsupportedAlignmentError struct {
	Session string
	Method  AlignmentMethod
}

func (e *UnsupportedAlignmentError) Error() string {
	return fmt.Sprintf("%s session does not support %s alignment", e.Session, e.Method)
}

// A Session aligns image pairs seen by one family of camera models.
type Session interface {
	Name() string
	AlignmentMethod() AlignmentMethod
	// Datum returns the datum used for a pair whose left image is seen by the given input.
	Datum(in ipmatch.AlignmentInput) (cartography.Datum, error)
	Align(ctx context.Context, in ipmatch.AlignmentInput) (*Alignment, error)
	// AlignPairs aligns independent pairs concurrently, at most limit at a time when limit is
	// positive. Results are indexed like pairs and a failed pair has a nil result.
	AlignPairs(ctx context.Context, pairs []ipmatch.AlignmentInput, limit int) ([]*Alignment, error)
}

// Alignment is the outcome of aligning one image pair.
type Alignment struct {
	Method AlignmentMethod
	// Homography maps right image pixels into the left image.
	Homography *transform.Homography
	// Result is set for homography alignment.
	Result *ipmatch.AlignmentResult
}

type stereoSession struct {
	name   string
	method AlignmentMethod
	cfg    *Config
	datum  ResolveDatum
	logger logging.Logger
}

func (s *stereoSession) Name() string {
	return s.name
}

func (s *stereoSession) AlignmentMethod() AlignmentMethod {
	return s.method
}

func (s *stereoSession) Datum(in ipmatch.AlignmentInput) (cartography.Datum, error) {
	datum, err := s.datum(s.cfg, in.LeftCamera)
	if err != nil {
		return cartography.Datum{}, errors.Wrapf(err, "resolving datum of %s session", s.name)
	}
	return datum, nil
}

func (s *stereoSession) Align(ctx context.Context, in ipmatch.AlignmentInput) (*Alignment, error) {
	switch s.method {
	case AlignNone, AlignEpipolar:
		// Epipolar pairs are rectified by resampling the cameras, which leaves pixels in place.
		s.logger.CDebugw(ctx, "identity alignment", "pair", in.Name, "method", s.method)
		return &Alignment{Method: s.method, Homography: transform.IdentityHomography()}, nil
	case AlignHomography:
	default:
		return nil, &UnsupportedAlignmentError{Session: s.name, Method: s.method}
	}

	datum, err := s.Datum(in)
	if err != nil {
		return nil, err
	}
	in.Datum = datum
	res, err := ipmatch.MatchWithAlignment(ctx, in, s.cfg.Alignment, ipmatch.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	return &Alignment{Method: s.method, Homography: res.Homography, Result: res}, nil
}

func (s *stereoSession) AlignPairs(ctx context.Context, pairs []ipmatch.AlignmentInput, limit int) ([]*Alignment, error) {
	out := make([]*Alignment, len(pairs))
	if s.method != AlignHomography {
		for i, in := range pairs {
			aligned, err := s.Align(ctx, in)
			if err != nil {
				return nil, err
			}
			out[i] = aligned
		}
		return out, nil
	}

	inputs := slices.Clone(pairs)
	for i := range inputs {
		datum, err := s.Datum(inputs[i])
		if err != nil {
			return nil, errors.Wrapf(err, "pair %d", i)
		}
		inputs[i].Datum = datum
	}
	results, err := ipmatch.MatchPairs(ctx, inputs, s.cfg.Alignment, limit, ipmatch.WithLogger(s.logger))
	if results == nil {
		return nil, err
	}
	for i, res := range results {
		if res != nil {
			out[i] = &Alignment{Method: s.method, Homography: res.Homography, Result: res}
		}
	}
	return out, err
}
