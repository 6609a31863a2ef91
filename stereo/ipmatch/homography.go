package ipmatch

import (
	"context"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/transform"
	"go.viam.com/stereo/utils"
)

// bootstrapGridSize is the number of samples along each image axis when bouncing pixels off the datum.
const bootstrapGridSize = 100

// FitHomography robustly fits the homography mapping src onto dst, where dst pixels lie inside
// bounds. A pixel is an inlier when its transfer error is below a tenth of the bounds diagonal, and
// at least half of the points must be inliers. The fit is rejected with an error matching
// transform.ErrInvalidStereoPair when it is poorly supported or degenerate.
func FitHomography(src, dst []r2.Point, bounds image.Rectangle, opts ...Option) (*transform.Homography, []int, error) {
	return fitHomography(src, dst, bounds, newOptions(opts))
}

func fitHomography(src, dst []r2.Point, bounds image.Rectangle, o *options) (*transform.Homography, []int, error) {
	if len(src) != len(dst) {
		return nil, nil, errors.Errorf("homography needs paired points, got %d and %d", len(src), len(dst))
	}
	fitter := &transform.RANSACHomography{
		Iterations:      o.iterations,
		InlierThreshold: diagonal(bounds) / 10,
		MinInliers:      len(src) / 2,
		Rand:            o.newRand(),
	}
	h, inliers, err := fitter.Fit(src, dst)
	if err != nil {
		return nil, nil, err
	}
	if err := transform.CheckHomography(h, len(src), len(dst), inliers); err != nil {
		return nil, nil, err
	}
	o.logger.Debugw("fit homography", "points", len(src), "inliers", len(inliers), "det", h.Det2x2())
	return h, inliers, nil
}

func diagonal(bounds image.Rectangle) float64 {
	return math.Hypot(float64(bounds.Dx()), float64(bounds.Dy()))
}

// BootstrapHomography estimates a rough homography from image-2 pixels to image-1 pixels using
// only the cameras and the datum, before any features are matched. A grid of pixels in each image
// is intersected with the datum and projected into the other image; samples that miss the datum or
// land outside the other image are skipped.
func BootstrapHomography(
	ctx context.Context,
	cam1, cam2 camera.Model,
	bounds1, bounds2 image.Rectangle,
	datum cartography.Datum,
	opts ...Option,
) (*transform.Homography, error) {
	o := newOptions(opts)
	if err := datum.Validate(); err != nil {
		return nil, err
	}

	var forward, backward bouncedSamples
	if _, err := utils.RunInParallel(ctx, []utils.SimpleFunc{
		func(ctx context.Context) error {
			var err error
			forward, err = bounceGrid(ctx, cam1, cam2, bounds1, bounds2, datum)
			return err
		},
		func(ctx context.Context) error {
			var err error
			backward, err = bounceGrid(ctx, cam2, cam1, bounds2, bounds1, datum)
			return err
		},
	}); err != nil {
		return nil, err
	}

	left := append(append(make([]r2.Point, 0, len(forward.from)+len(backward.to)), forward.from...), backward.to...)
	right := append(append(make([]r2.Point, 0, len(forward.to)+len(backward.from)), forward.to...), backward.from...)
	o.logger.CDebugw(ctx, "projected rays for rough homography",
		"samples", len(left),
		"misses", forward.misses+backward.misses,
		"outside", forward.outside+backward.outside,
	)
	if len(left) == 0 {
		return nil, &transform.InsufficientInliersError{Required: 4}
	}

	h, _, err := fitHomography(right, left, bounds1, o)
	if err != nil {
		return nil, errors.Wrap(err, "rough homography")
	}
	return h, nil
}

type bouncedSamples struct {
	from, to []r2.Point
	misses   int
	outside  int
}

// bounceGrid intersects a grid of pixels of the first camera with the datum and projects the hits
// into the second camera.
func bounceGrid(
	ctx context.Context,
	from, to camera.Model,
	fromBounds, toBounds image.Rectangle,
	datum cartography.Datum,
) (bouncedSamples, error) {
	var out bouncedSamples
	for i := 0; i < bootstrapGridSize; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for j := 0; j < bootstrapGridSize; j++ {
			pixel := r2.Point{
				X: float64(fromBounds.Min.X) + utils.GridCoordinate(fromBounds.Dx(), i, bootstrapGridSize),
				Y: float64(fromBounds.Min.Y) + utils.GridCoordinate(fromBounds.Dy(), j, bootstrapGridSize),
			}
			projected, err := bounce(pixel, from, to, datum)
			if err != nil {
				if camera.IsGeometryMiss(err) {
					out.misses++
					continue
				}
				return out, err
			}
			if !contains(toBounds, projected) {
				out.outside++
				continue
			}
			out.from = append(out.from, pixel)
			out.to = append(out.to, projected)
		}
	}
	return out, nil
}

func bounce(pixel r2.Point, from, to camera.Model, datum cartography.Datum) (r2.Point, error) {
	center, err := from.CameraCenter(pixel)
	if err != nil {
		return r2.Point{}, err
	}
	dir, err := from.PixelToVector(pixel)
	if err != nil {
		return r2.Point{}, err
	}
	ground, err := datum.IntersectRay(center, dir)
	if err != nil {
		return r2.Point{}, err
	}
	return to.PointToPixel(ground)
}

func contains(bounds image.Rectangle, pt r2.Point) bool {
	return pt.X >= float64(bounds.Min.X) && pt.X < float64(bounds.Max.X) &&
		pt.Y >= float64(bounds.Min.Y) && pt.Y < float64(bounds.Max.Y)
}
