package transform

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidStereoPair is matched by every error that rejects an image pair as unusable.
var ErrInvalidStereoPair = errors.New("invalid stereo pair")

// ErrDegenerateLine is returned when an epipolar line cannot be defined because the two
// projected points coincide.
var ErrDegenerateLine = errors.New("epipolar line is degenerate")

// ErrParallelRays is returned when two rays are too close to parallel to triangulate.
var ErrParallelRays = errors.New("rays are parallel")

// InsufficientInliersError reports a homography supported by too few correspondences.
type InsufficientInliersError struct {
	Inliers  int
	Required int
	Points   int
}

func (e *InsufficientInliersError) Error() string {
	return fmt.Sprintf("homography has %d inliers of %d points, need at least %d", e.Inliers, e.Points, e.Required)
}

// Is reports InsufficientInliersError as an ErrInvalidStereoPair.
func (e *InsufficientInliersError) Is(target error) bool {
	return target == ErrInvalidStereoPair
}

// DegenerateTransformError reports a homography whose upper-left 2x2 determinant lies outside
// the open interval (Min, Max).
type DegenerateTransformError struct {
	Det float64
	Min float64
	Max float64
}

func (e *DegenerateTransformError) Error() string {
	return fmt.Sprintf("homography is degenerate: 2x2 determinant %v outside (%v, %v)", e.Det, e.Min, e.Max)
}

// Is reports DegenerateTransformError as an ErrInvalidStereoPair.
func (e *DegenerateTransformError) Is(target error) bool {
	return target == ErrInvalidStereoPair
}
