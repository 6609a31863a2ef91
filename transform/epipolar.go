package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
)

// epipolarStep is how far, in meters, the second line point is placed along the viewing ray
// beyond the datum intersection.
const epipolarStep = 10.0

// EpipolarLine returns the line (a, b, c), with a*x + b*y + c = 0, in cam2's raw pixels on which the
// match of feature (a raw cam1 pixel) must lie. The line passes through the projections of the
// ray's datum intersection and of a point slightly further along the ray.
func EpipolarLine(feature r2.Point, datum cartography.Datum, cam1, cam2 camera.Model) (r3.Vector, error) {
	center, err := cam1.CameraCenter(feature)
	if err != nil {
		return r3.Vector{}, err
	}
	dir, err := cam1.PixelToVector(feature)
	if err != nil {
		return r3.Vector{}, err
	}
	p0, err := datum.IntersectRay(center, dir)
	if err != nil {
		return r3.Vector{}, err
	}
	p1 := p0.Add(dir.Mul(epipolarStep))

	q0, err := cam2.PointToPixel(p0)
	if err != nil {
		return r3.Vector{}, err
	}
	q1, err := cam2.PointToPixel(p1)
	if err != nil {
		return r3.Vector{}, err
	}
	if q0.Sub(q1).Norm() < 1e-12 {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateLine, "both points project to %v", q0)
	}

	line, err := nullVector(mat.NewDense(2, 3, []float64{q0.X, q0.Y, 1, q1.X, q1.Y, 1}))
	if err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: line[0], Y: line[1], Z: line[2]}, nil
}

// DistancePointLine returns the perpendicular distance from pt to the line (a, b, c).
func DistancePointLine(line r3.Vector, pt r2.Point) float64 {
	return math.Abs(line.X*pt.X+line.Y*pt.Y+line.Z) / math.Hypot(line.X, line.Y)
}
