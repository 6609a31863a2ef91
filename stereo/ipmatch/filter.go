package ipmatch

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/montanaflynn/stats"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/transform"
	"go.viam.com/stereo/utils"
	"go.viam.com/stereo/vision/clustering"
	"go.viam.com/stereo/vision/keypoints"
)

// ErrClusteringUnreliable is returned by pipelines that cannot tell inliers from outliers because
// the tightest triangulation error cluster is still too spread out.
var ErrClusteringUnreliable = errors.New("triangulation error clustering is unreliable")

const (
	// MaxInlierResidualVariance is the largest variance, in square meters, of the tight
	// triangulation error cluster for filtering to be trusted.
	MaxInlierResidualVariance = 1e6
	// altitudeSigmas bounds how far an altitude inlier may lie from the tight altitude cluster.
	altitudeSigmas = 3
	// minAltitudeVarianceDecades is how many orders of magnitude the altitude cluster variances
	// must differ for the altitude check to apply.
	minAltitudeVarianceDecades = 1
)

// GeometryFilterResult is the outcome of filtering matched pairs by their triangulated geometry.
// Per pair slices are indexed like the input pairs.
type GeometryFilterResult struct {
	// Success is false when the triangulation error clusters cannot separate inliers, in which case
	// Inliers is empty.
	Success bool
	// Inliers are the indices of the pairs that survived, in input order.
	Inliers []int
	// ResidualClusters and AltitudeClusters have the tight cluster first.
	ResidualClusters      [2]clustering.GaussianCluster
	AltitudeClusters      [2]clustering.GaussianCluster
	AltitudeCheckDisabled bool
	// Triangulated reports which pairs produced a point. Failed pairs have NaN residual and altitude
	// and a nil position.
	Triangulated []bool
	Residuals    []float64
	Altitudes    []float64
	Positions    []*geo.Point
	// Footprint is the longitude/latitude bound of the inliers.
	Footprint orb.Bound
	// Extent approximates the largest surface distance between two inliers in meters, measured
	// along great circles of the datum's equatorial radius.
	Extent float64
	// ResidualMedian and ResidualP90 summarize the triangulation error of the inliers in meters.
	ResidualMedian float64
	ResidualP90    float64
}

type triangulatedPair struct {
	ok       bool
	residual float64
	position cartography.GeodeticPosition
	err      error
}

// FilterByGeometry triangulates each matched pair and keeps the pairs that belong to the tight
// clusters of triangulation error and altitude above the datum. m1[i] and m2[i] form the i-th pair
// and are in processed image coordinates; tx1 and tx2 map them back to raw camera pixels. Pairs that
// cannot be triangulated are never inliers.
func FilterByGeometry(
	ctx context.Context,
	m1, m2 []keypoints.InterestPoint,
	cam1, cam2 camera.Model,
	datum cartography.Datum,
	tx1, tx2 camera.PixelTransform,
	opts ...Option,
) (*GeometryFilterResult, error) {
	return filterByGeometry(ctx, m1, m2, cam1, cam2, datum, tx1, tx2, newOptions(opts))
}

func filterByGeometry(
	ctx context.Context,
	m1, m2 []keypoints.InterestPoint,
	cam1, cam2 camera.Model,
	datum cartography.Datum,
	tx1, tx2 camera.PixelTransform,
	o *options,
) (*GeometryFilterResult, error) {
	if len(m1) != len(m2) {
		return nil, errors.Errorf("matched pairs must have the same length, got %d and %d", len(m1), len(m2))
	}
	if err := datum.Validate(); err != nil {
		return nil, err
	}
	tx1, tx2 = camera.OrIdentity(tx1), camera.OrIdentity(tx2)

	pairs := make([]triangulatedPair, len(m1))
	if err := utils.GroupWorkParallel(ctx, len(m1), func(_, _, _, _ int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
		return func(_, i int) {
			pairs[i] = triangulate(tx1.Reverse(m1[i].Point()), tx2.Reverse(m2[i].Point()), cam1, cam2, datum)
		}, nil
	}); err != nil {
		return nil, err
	}

	var errs error
	res := &GeometryFilterResult{
		Triangulated: make([]bool, len(pairs)),
		Residuals:    make([]float64, len(pairs)),
		Altitudes:    make([]float64, len(pairs)),
		Positions:    make([]*geo.Point, len(pairs)),
	}
	for i, p := range pairs {
		if p.err != nil {
			errs = multierr.Append(errs, errors.Wrapf(p.err, "pair %d", i))
		}
		res.Triangulated[i] = p.ok
		if !p.ok {
			res.Residuals[i] = math.NaN()
			res.Altitudes[i] = math.NaN()
			continue
		}
		res.Residuals[i] = p.residual
		res.Altitudes[i] = p.position.Height
		res.Positions[i] = p.position.Point()
	}
	if errs != nil {
		return nil, errs
	}

	valid := lo.Filter(lo.Range(len(pairs)), func(i, _ int) bool { return res.Triangulated[i] })
	if len(valid) < 2 {
		o.logger.CDebugw(ctx, "too few triangulated pairs to cluster", "pairs", len(pairs), "triangulated", len(valid))
		return res, nil
	}

	outcome, err := classifyGeometry(
		lo.Map(valid, func(i, _ int) float64 { return res.Residuals[i] }),
		lo.Map(valid, func(i, _ int) float64 { return res.Altitudes[i] }),
	)
	if err != nil {
		return nil, err
	}
	res.ResidualClusters = outcome.residualClusters
	res.AltitudeClusters = outcome.altitudeClusters
	res.AltitudeCheckDisabled = outcome.altitudeCheckDisabled
	res.Success = outcome.success
	if !res.Success {
		o.logger.CDebugw(ctx, "triangulation error clusters too wide",
			"variance", res.ResidualClusters[0].Variance, "max", MaxInlierResidualVariance)
		return res, nil
	}

	res.Inliers = lo.Map(outcome.inliers, func(k, _ int) int { return valid[k] })
	res.summarize(datum)

	o.logger.CDebugw(ctx, "geometry filter",
		"pairs", len(pairs),
		"triangulated", len(valid),
		"inliers", len(res.Inliers),
		"residual_mean", res.ResidualClusters[0].Mean,
		"residual_stddev", res.ResidualClusters[0].StdDev(),
		"altitude_mean", res.AltitudeClusters[0].Mean,
		"altitude_stddev", res.AltitudeClusters[0].StdDev(),
		"altitude_check_disabled", res.AltitudeCheckDisabled,
		"extent_m", res.Extent,
	)
	return res, nil
}

func triangulate(p1, p2 r2.Point, cam1, cam2 camera.Model, datum cartography.Datum) triangulatedPair {
	c1, d1, err := ray(cam1, p1)
	if err != nil {
		return missOrError(err)
	}
	c2, d2, err := ray(cam2, p2)
	if err != nil {
		return missOrError(err)
	}
	point, residual, err := transform.TriangulateRays(c1, d1, c2, d2)
	if err != nil {
		return triangulatedPair{}
	}
	return triangulatedPair{ok: true, residual: residual, position: datum.CartesianToGeodetic(point)}
}

func ray(cam camera.Model, pixel r2.Point) (r3.Vector, r3.Vector, error) {
	center, err := cam.CameraCenter(pixel)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	dir, err := cam.PixelToVector(pixel)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	return center, dir, nil
}

func missOrError(err error) triangulatedPair {
	if camera.IsGeometryMiss(err) {
		return triangulatedPair{}
	}
	return triangulatedPair{err: err}
}

type geometryOutcome struct {
	success               bool
	inliers               []int
	residualClusters      [2]clustering.GaussianCluster
	altitudeClusters      [2]clustering.GaussianCluster
	altitudeCheckDisabled bool
}

// classifyGeometry clusters residual and altitude samples and returns the indices of the samples
// that fall in the tight cluster of both.
func classifyGeometry(residuals, altitudes []float64) (geometryOutcome, error) {
	var out geometryOutcome
	var err error
	if out.residualClusters, err = clustering.FitTwoGaussians(residuals); err != nil {
		return out, errors.Wrap(err, "clustering triangulation error")
	}
	if out.altitudeClusters, err = clustering.FitTwoGaussians(altitudes); err != nil {
		return out, errors.Wrap(err, "clustering altitude")
	}
	if out.residualClusters[0].Variance > MaxInlierResidualVariance {
		return out, nil
	}
	out.success = true

	out.altitudeCheckDisabled = math.Abs(
		math.Log10(out.altitudeClusters[0].Variance)-math.Log10(out.altitudeClusters[1].Variance),
	) < minAltitudeVarianceDecades

	for i := range residuals {
		if residualInlier(residuals[i], out.residualClusters) &&
			(out.altitudeCheckDisabled || altitudeInlier(altitudes[i], out.altitudeClusters)) {
			out.inliers = append(out.inliers, i)
		}
	}
	return out, nil
}

func residualInlier(x float64, c [2]clustering.GaussianCluster) bool {
	return c[0].LogDensity(x) > c[1].LogDensity(x) || x < c[0].Mean
}

func altitudeInlier(x float64, c [2]clustering.GaussianCluster) bool {
	return c[0].LogDensity(x) > c[1].LogDensity(x) && math.Abs(x-c[0].Mean) < altitudeSigmas*c[0].StdDev()
}

func (res *GeometryFilterResult) summarize(datum cartography.Datum) {
	residuals := stats.Float64Data(lo.Map(res.Inliers, func(i, _ int) float64 { return res.Residuals[i] }))
	if median, err := residuals.Median(); err == nil {
		res.ResidualMedian = median
	}
	if p90, err := residuals.Percentile(90); err == nil {
		res.ResidualP90 = p90
	}

	footprint := make(orb.MultiPoint, 0, len(res.Inliers))
	for _, i := range res.Inliers {
		footprint = append(footprint, orb.Point{res.Positions[i].Lng(), res.Positions[i].Lat()})
	}
	res.Footprint = footprint.Bound()
	res.Extent = surfaceExtent(lo.Map(res.Inliers, func(i, _ int) *geo.Point { return res.Positions[i] }), datum.SemiMajorAxis)
}

// surfaceExtent sweeps twice for the farthest point, which finds at least half of the true diameter
// and usually all of it.
func surfaceExtent(points []*geo.Point, radius float64) float64 {
	if len(points) < 2 {
		return 0
	}
	farthest := func(from *geo.Point) (*geo.Point, float64) {
		best, dist := from, 0.0
		for _, p := range points {
			if d := from.GreatCircleDistance(p); d > dist {
				best, dist = p, d
			}
		}
		return best, dist
	}
	end, _ := farthest(points[0])
	_, km := farthest(end)
	// GreatCircleDistance is in kilometers on a sphere of geo.EARTH_RADIUS kilometers.
	return km / geo.EARTH_RADIUS * radius
}
