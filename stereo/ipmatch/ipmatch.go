// Package ipmatch matches interest points between two overlapping images and verifies the
// matches geometrically. It ties together epipolar constrained matching, homography estimation and
// triangulation based outlier rejection.
package ipmatch

import (
	"context"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/vision/keypoints"
)

// ComputeMatches returns, for each interest point of ip1, the index of its match in ip2 or
// keypoints.NoMatch. A candidate must lie within epipolarThreshold raw pixels of the epipolar line
// of the feature and pass the ratio test at ratioThreshold.
func ComputeMatches(
	ctx context.Context,
	ip1, ip2 []keypoints.InterestPoint,
	cam1, cam2 camera.Model,
	tx1, tx2 camera.PixelTransform,
	datum cartography.Datum,
	epipolarThreshold, ratioThreshold float64,
	progress keypoints.ProgressFunc,
	opts ...Option,
) (keypoints.MatchResult, error) {
	cfg := keypoints.DefaultMatchingConfig()
	cfg.EpipolarThreshold = epipolarThreshold
	cfg.RatioThreshold = ratioThreshold
	return computeMatches(ctx, ip1, ip2, cam1, cam2, tx1, tx2, datum, cfg, progress, newOptions(opts))
}

func computeMatches(
	ctx context.Context,
	ip1, ip2 []keypoints.InterestPoint,
	cam1, cam2 camera.Model,
	tx1, tx2 camera.PixelTransform,
	datum cartography.Datum,
	cfg *keypoints.MatchingConfig,
	progress keypoints.ProgressFunc,
	o *options,
) (keypoints.MatchResult, error) {
	matcher, err := keypoints.NewEpipolarMatcher(cfg, datum, o.logger.Sublogger("matching"))
	if err != nil {
		return nil, err
	}
	return matcher.Match(ctx, ip1, ip2, cam1, cam2, tx1, tx2, progress)
}
