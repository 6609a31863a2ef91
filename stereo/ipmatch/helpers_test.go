package ipmatch

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/vision/keypoints"
)

const (
	sceneRadius   = 100000.0
	sceneAltitude = 10000.0
	imageSize     = 1000
)

var (
	nadir = [3][3]float64{
		{1, 0, 0},
		{0, -1, 0},
		{0, 0, -1},
	}
	imageBounds = image.Rect(0, 0, imageSize, imageSize)
)

// stereoPair returns two nadir pointing cameras 2km apart along x, 10km above a sphere of the
// given radius. The left camera sees the sub-satellite midpoint at pixel x=600 and the right one at
// x=400, on the same row.
func stereoPair(t *testing.T, radius float64) (*camera.PinholeModel, *camera.PinholeModel) {
	t.Helper()
	intrinsics := &camera.PinholeCameraIntrinsics{
		Width: imageSize, Height: imageSize, Fx: 1000, Fy: 1000, Ppx: imageSize / 2, Ppy: imageSize / 2,
	}
	left, err := camera.NewPinholeModel(intrinsics, r3.Vector{X: -1000, Z: radius + sceneAltitude}, nadir)
	test.That(t, err, test.ShouldBeNil)
	right, err := camera.NewPinholeModel(intrinsics, r3.Vector{X: 1000, Z: radius + sceneAltitude}, nadir)
	test.That(t, err, test.ShouldBeNil)
	return left, right
}

// surfacePoint returns the point at the given height above the sphere, below (x, y) on the plane
// tangent at the north pole.
func surfacePoint(radius, x, y, height float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: math.Sqrt(radius*radius - x*x - y*y)}.Normalize().Mul(radius + height)
}

func randomDescriptor(rng *rand.Rand) []float64 {
	desc := make([]float64, 8)
	for i := range desc {
		desc[i] = rng.Float64()
	}
	return desc
}

func perturb(desc []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(desc))
	for i, v := range desc {
		out[i] = v + 1e-4*rng.NormFloat64()
	}
	return out
}

type scene struct {
	left, right *camera.PinholeModel
	datum       cartography.Datum
	ip1, ip2    []keypoints.InterestPoint
	numReal     int
}

// newScene places n terrain points within a meter of the datum, visible from both cameras, and
// returns their exact projections with near identical descriptors. Real pairs come first in both
// lists, in the same order.
func newScene(t *testing.T, n int, rng *rand.Rand) *scene {
	t.Helper()
	left, right := stereoPair(t, sceneRadius)
	s := &scene{left: left, right: right, datum: datumForRadius(sceneRadius)}
	s.addTerrain(t, n, rng, 0, 0)
	s.numReal = n
	return s
}

// addTerrain appends n terrain features seen by both cameras. Each right feature is moved along
// the image column by a random shift with magnitude in [minShift, maxShift].
func (s *scene) addTerrain(t *testing.T, n int, rng *rand.Rand, minShift, maxShift float64) {
	t.Helper()
	for added := 0; added < n; {
		ground := surfacePoint(sceneRadius, -3000+6000*rng.Float64(), -3000+6000*rng.Float64(), -1+2*rng.Float64())
		p1, err := s.left.PointToPixel(ground)
		test.That(t, err, test.ShouldBeNil)
		p2, err := s.right.PointToPixel(ground)
		test.That(t, err, test.ShouldBeNil)
		shift := minShift + (maxShift-minShift)*rng.Float64()
		if rng.Intn(2) == 0 {
			shift = -shift
		}
		p2.Y += shift
		if !contains(imageBounds, p1) || !contains(imageBounds, p2) {
			continue
		}
		desc := randomDescriptor(rng)
		s.ip1 = append(s.ip1, keypoints.InterestPoint{X: p1.X, Y: p1.Y, Interest: 1, Descriptor: desc})
		s.ip2 = append(s.ip2, keypoints.InterestPoint{X: p2.X, Y: p2.Y, Interest: 1, Descriptor: perturb(desc, rng)})
		added++
	}
}

// addClutter appends unrelated features with random locations and descriptors to both images.
func (s *scene) addClutter(n int, rng *rand.Rand) {
	for i := 0; i < n; i++ {
		s.ip1 = append(s.ip1, keypoints.InterestPoint{
			X: imageSize * rng.Float64(), Y: imageSize * rng.Float64(), Descriptor: randomDescriptor(rng),
		})
		s.ip2 = append(s.ip2, keypoints.InterestPoint{
			X: imageSize * rng.Float64(), Y: imageSize * rng.Float64(), Descriptor: randomDescriptor(rng),
		})
	}
}

func (s *scene) input() AlignmentInput {
	return AlignmentInput{
		Name:        "scene",
		Left:        s.ip1,
		Right:       s.ip2,
		LeftCamera:  s.left,
		RightCamera: s.right,
		LeftBounds:  imageBounds,
		Datum:       s.datum,
	}
}

func datumForRadius(radius float64) cartography.Datum {
	return cartography.NewSphere("scene", radius)
}
