package session

import (
	"context"
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/stereo/ipmatch"
	"go.viam.com/stereo/vision/keypoints"
)

const radius = 100000.0

var nadir = [3][3]float64{
	{1, 0, 0},
	{0, -1, 0},
	{0, 0, -1},
}

// targetCamera is a pinhole camera that knows the body it looks at.
type targetCamera struct {
	*camera.PinholeModel
	radii r3.Vector
}

func (c targetCamera) TargetRadii() r3.Vector {
	return c.radii
}

func cameraPair(t *testing.T) (*camera.PinholeModel, *camera.PinholeModel) {
	t.Helper()
	intrinsics := &camera.PinholeCameraIntrinsics{Width: 1000, Height: 1000, Fx: 1000, Fy: 1000, Ppx: 500, Ppy: 500}
	left, err := camera.NewPinholeModel(intrinsics, r3.Vector{X: -1000, Z: radius + 10000}, nadir)
	test.That(t, err, test.ShouldBeNil)
	right, err := camera.NewPinholeModel(intrinsics, r3.Vector{X: 1000, Z: radius + 10000}, nadir)
	test.That(t, err, test.ShouldBeNil)
	return left, right
}

// pairInput returns n exact correspondences of ground points seen by both cameras.
func pairInput(t *testing.T, n int, seed int64) ipmatch.AlignmentInput {
	t.Helper()
	left, right := cameraPair(t)
	bounds := image.Rect(0, 0, 1000, 1000)
	rng := rand.New(rand.NewSource(seed))
	in := ipmatch.AlignmentInput{
		Name:        "test",
		LeftCamera:  left,
		RightCamera: right,
		LeftBounds:  bounds,
	}
	inside := func(p r2.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < 1000 && p.Y < 1000
	}
	for len(in.Left) < n {
		x, y := -3000+6000*rng.Float64(), -3000+6000*rng.Float64()
		ground := r3.Vector{X: x, Y: y, Z: math.Sqrt(radius*radius - x*x - y*y)}
		p1, err := left.PointToPixel(ground)
		test.That(t, err, test.ShouldBeNil)
		p2, err := right.PointToPixel(ground)
		test.That(t, err, test.ShouldBeNil)
		if !inside(p1) || !inside(p2) {
			continue
		}
		desc := make([]float64, 8)
		for i := range desc {
			desc[i] = rng.Float64()
		}
		in.Left = append(in.Left, keypoints.InterestPoint{X: p1.X, Y: p1.Y, Descriptor: desc})
		in.Right = append(in.Right, keypoints.InterestPoint{X: p2.X, Y: p2.Y, Descriptor: desc})
	}
	return in
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	test.That(t, reg.Names(), test.ShouldResemble, []string{"dg", "isis", "pinhole", "rpc"})

	pinhole, ok := reg.Lookup("pinhole")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pinhole.Supports(AlignEpipolar), test.ShouldBeTrue)

	isis, ok := reg.Lookup("isis")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, isis.Supports(AlignHomography), test.ShouldBeTrue)
	test.That(t, isis.Supports(AlignEpipolar), test.ShouldBeFalse)

	_, ok = reg.Lookup("nadirpinhole")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestNewRegistryErrors(t *testing.T) {
	_, err := NewRegistry(Registration{Alignments: []AlignmentMethod{AlignNone}, Datum: configuredDatum})
	test.That(t, err, test.ShouldNotBeNil)

	ok := Registration{Name: "a", Alignments: []AlignmentMethod{AlignNone}, Datum: configuredDatum}
	_, err = NewRegistry(ok, ok)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate")

	_, err = NewRegistry(Registration{Name: "a", Datum: configuredDatum})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewRegistry(Registration{Name: "a", Alignments: []AlignmentMethod{AlignNone}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewSession(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := DefaultRegistry()

	_, err := reg.New("nadirpinhole", nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown session type")

	sess, err := reg.New("isis", nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sess.Name(), test.ShouldEqual, "isis")
	test.That(t, sess.AlignmentMethod(), test.ShouldEqual, AlignHomography)

	_, err = reg.New("isis", &Config{AlignmentMethod: AlignEpipolar}, logger)
	var unsupported *UnsupportedAlignmentError
	test.That(t, errors.As(err, &unsupported), test.ShouldBeTrue)
	test.That(t, unsupported.Session, test.ShouldEqual, "isis")
	test.That(t, err.Error(), test.ShouldEqual, "isis session does not support epipolar alignment")

	sess, err = reg.New("pinhole", &Config{AlignmentMethod: AlignEpipolar}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sess.AlignmentMethod(), test.ShouldEqual, AlignEpipolar)

	_, err = reg.New("pinhole", &Config{AlignmentMethod: "affine"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "affine")

	_, err = reg.New("pinhole", &Config{Datum: &cartography.Datum{Name: "flat"}}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, (&Config{}).Validate("session"), test.ShouldBeNil)
	test.That(t, (&Config{TargetRadii: []float64{1, 2, 3}}).Validate("session"), test.ShouldBeNil)

	err := (&Config{TargetRadii: []float64{1, 2}}).Validate("session")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "target_radii")

	err = (&Config{TargetRadii: []float64{1, 0, 3}}).Validate("session")
	test.That(t, err, test.ShouldNotBeNil)

	cfg := &Config{Alignment: ipmatch.DefaultAlignmentConfig()}
	cfg.Alignment.Matching.RatioThreshold = 2
	err = cfg.Validate("session")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "ratio_threshold")
}

func TestSessionDatum(t *testing.T) {
	logger := logging.NewTestLogger(t)
	left, _ := cameraPair(t)
	in := ipmatch.AlignmentInput{LeftCamera: left}

	sess, err := DefaultRegistry().New("rpc", nil, logger)
	test.That(t, err, test.ShouldBeNil)
	datum, err := sess.Datum(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum, test.ShouldResemble, cartography.WGS84)

	sess, err = DefaultRegistry().New("dg", &Config{Datum: &cartography.Moon}, logger)
	test.That(t, err, test.ShouldBeNil)
	datum, err = sess.Datum(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum, test.ShouldResemble, cartography.Moon)

	// isis needs the target body from its config or its camera.
	sess, err = DefaultRegistry().New("isis", nil, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = sess.Datum(in)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "target_radii")

	in.LeftCamera = targetCamera{PinholeModel: left, radii: r3.Vector{X: 3396190, Y: 3396190, Z: 3376200}}
	datum, err = sess.Datum(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum.SemiMajorAxis, test.ShouldEqual, 3396190.0)
	test.That(t, datum.SemiMinorAxis, test.ShouldEqual, 3376200.0)

	sess, err = DefaultRegistry().New("isis", &Config{TargetRadii: []float64{1738000, 1736000, 1737000}}, logger)
	test.That(t, err, test.ShouldBeNil)
	datum, err = sess.Datum(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum.SemiMajorAxis, test.ShouldEqual, 1737000.0)
	test.That(t, datum.SemiMinorAxis, test.ShouldEqual, 1737000.0)
}

func TestAlignIdentity(t *testing.T) {
	logger := logging.NewTestLogger(t)
	in := pairInput(t, 5, 1)
	for _, method := range []AlignmentMethod{AlignNone, AlignEpipolar} {
		sess, err := DefaultRegistry().New("pinhole", &Config{AlignmentMethod: method}, logger)
		test.That(t, err, test.ShouldBeNil)
		aligned, err := sess.Align(context.Background(), in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, aligned.Method, test.ShouldEqual, method)
		test.That(t, aligned.Result, test.ShouldBeNil)
		p := r2.Point{X: 123, Y: 456}
		test.That(t, aligned.Homography.Apply(p), test.ShouldResemble, p)
	}
}

func TestAlignHomography(t *testing.T) {
	seed := int64(4)
	alignment := ipmatch.DefaultAlignmentConfig()
	alignment.Homography.Seed = &seed
	alignment.Filter.Disabled = true
	cfg := &Config{Datum: &cartography.Datum{Name: "scene", SemiMajorAxis: radius, SemiMinorAxis: radius}, Alignment: alignment}

	sess, err := DefaultRegistry().New("pinhole", cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	aligned, err := sess.Align(context.Background(), pairInput(t, 60, 9))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, aligned.Method, test.ShouldEqual, AlignHomography)
	test.That(t, aligned.Result, test.ShouldNotBeNil)
	test.That(t, len(aligned.Result.Left), test.ShouldEqual, 60)

	// The sub-satellite midpoint is at x=400 on the right and x=600 on the left.
	mapped := aligned.Homography.Apply(r2.Point{X: 400, Y: 500})
	test.That(t, mapped.X, test.ShouldAlmostEqual, 600, 5)
	test.That(t, mapped.Y, test.ShouldAlmostEqual, 500, 5)
}

func TestAlignPairs(t *testing.T) {
	seed := int64(2)
	alignment := ipmatch.DefaultAlignmentConfig()
	alignment.Homography.Seed = &seed
	alignment.Filter.Disabled = true
	cfg := &Config{TargetRadii: []float64{radius, radius, radius}, Alignment: alignment}

	sess, err := DefaultRegistry().New("isis", cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	bad := pairInput(t, 3, 5)
	bad.Name = "bad"
	pairs := []ipmatch.AlignmentInput{pairInput(t, 60, 9), bad}
	aligned, err := sess.AlignPairs(context.Background(), pairs, 1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `pair "bad"`)
	test.That(t, len(aligned), test.ShouldEqual, 2)
	test.That(t, aligned[0], test.ShouldNotBeNil)
	test.That(t, aligned[1], test.ShouldBeNil)
	// The caller's inputs are left untouched.
	test.That(t, pairs[0].Datum, test.ShouldResemble, cartography.Datum{})

	mapped := aligned[0].Homography.Apply(r2.Point{X: 400, Y: 500})
	test.That(t, mapped.X, test.ShouldAlmostEqual, 600, 5)

	none, err := DefaultRegistry().New("isis", &Config{AlignmentMethod: AlignNone}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	aligned, err = none.AlignPairs(context.Background(), pairs, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(aligned), test.ShouldEqual, 2)
	test.That(t, aligned[1].Method, test.ShouldEqual, AlignNone)
}
