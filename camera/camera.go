// Package camera defines the camera model capability used by stereo matching, along with a
// pinhole reference model and the pixel transforms that relate processed images to raw camera pixels.
package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrGeometryMiss is the root of every failure where a pixel or point falls outside a camera's
// valid geometry. Callers that sample many pixels absorb it per sample.
var ErrGeometryMiss = errors.New("camera geometry miss")

var (
	// ErrPixelToRay is returned when a pixel has no valid viewing ray.
	ErrPixelToRay = errors.Wrap(ErrGeometryMiss, "pixel to ray")
	// ErrPointToPixel is returned when a world point does not project into the image plane.
	ErrPointToPixel = errors.Wrap(ErrGeometryMiss, "point to pixel")
)

// IsGeometryMiss returns whether err comes from a pixel or point outside valid camera geometry.
func IsGeometryMiss(err error) bool {
	return errors.Is(err, ErrGeometryMiss)
}

// A Model maps between raw camera pixels and world space. Implementations must be safe for
// concurrent reads.
type Model interface {
	// PixelToVector returns the unit world-space direction of the ray through the pixel.
	PixelToVector(pixel r2.Point) (r3.Vector, error)
	// PointToPixel projects a world-space point to a raw camera pixel.
	PointToPixel(point r3.Vector) (r2.Point, error)
	// CameraCenter returns the world-space origin of the ray through the pixel. Frame cameras
	// return the same center for every pixel; line-scan cameras vary it by row.
	CameraCenter(pixel r2.Point) (r3.Vector, error)
}
