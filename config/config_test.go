package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/stereo/ipmatch"
	"go.viam.com/stereo/stereo/session"
	"go.viam.com/stereo/transform"
	"go.viam.com/stereo/vision/keypoints"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestReadJSON(t *testing.T) {
	t.Setenv("STEREO_RATIO", "0.6")
	path := writeFile(t, "pair.json", `{
		"session": {"type": "pinhole", "alignment_method": "homography"},
		"datum": {"name": "moon"},
		"matching": {"ratio_threshold": ${STEREO_RATIO}},
		"homography": {"ransac_iterations": 250, "seed": 3},
		"parallelism": 4,
		"log_level": "debug"
	}`)

	cfg, err := Read(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Session.Type, test.ShouldEqual, "pinhole")
	test.That(t, cfg.Session.AlignmentMethod, test.ShouldEqual, session.AlignHomography)
	test.That(t, cfg.Matching.RatioThreshold, test.ShouldEqual, 0.6)
	// Unset fields keep their defaults.
	test.That(t, cfg.Matching.EpipolarThreshold, test.ShouldEqual, keypoints.DefaultEpipolarThreshold)
	test.That(t, cfg.Homography.Iterations, test.ShouldEqual, 250)
	test.That(t, *cfg.Homography.Seed, test.ShouldEqual, int64(3))
	test.That(t, cfg.Filter, test.ShouldResemble, &ipmatch.FilterConfig{})
	test.That(t, cfg.Parallelism, test.ShouldEqual, 4)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)

	datum, err := cfg.Datum.Datum()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum, test.ShouldResemble, cartography.Moon)
}

func TestReadYAML(t *testing.T) {
	path := writeFile(t, "pair.yaml", strings.Join([]string{
		"session:",
		"  type: isis",
		"  target_radii: [3396190, 3396190, 3376200]",
		"filter:",
		"  strict: true",
	}, "\n"))

	cfg, err := Read(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Session.Type, test.ShouldEqual, "isis")
	test.That(t, cfg.Session.TargetRadii, test.ShouldResemble, []float64{3396190, 3396190, 3376200})
	test.That(t, cfg.Filter.Strict, test.ShouldBeTrue)
	test.That(t, cfg.Matching, test.ShouldResemble, keypoints.DefaultMatchingConfig())
	test.That(t, cfg.Homography.Iterations, test.ShouldEqual, transform.DefaultRANSACIterations)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.INFO)

	sess, err := cfg.NewSession(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sess.Name(), test.ShouldEqual, "isis")
	datum, err := sess.Datum(ipmatch.AlignmentInput{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum.SemiMajorAxis, test.ShouldEqual, 3396190.0)
	test.That(t, datum.SemiMinorAxis, test.ShouldEqual, 3376200.0)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		file     string
		contents string
		errText  string
	}{
		{"missing type", "a.json", `{"session": {}}`, "type"},
		{"unknown type", "b.json", `{"session": {"type": "nadirpinhole"}}`, "nadirpinhole"},
		{"unknown field", "c.json", `{"session": {"type": "dg"}, "sessions": 1}`, "sessions"},
		{"unknown datum", "d.yml", "session:\n  type: rpc\ndatum:\n  name: pluto\n", "pluto"},
		{"bad axes", "e.json", `{"session": {"type": "rpc"}, "datum": {"semi_major_axis": -1, "semi_minor_axis": 1}}`, "positive"},
		{"bad ratio", "f.json", `{"session": {"type": "dg"}, "matching": {"ratio_threshold": 3}}`, "ratio_threshold"},
		{"bad method", "g.json", `{"session": {"type": "dg", "alignment_method": "affine"}}`, "affine"},
		{"negative parallelism", "h.json", `{"session": {"type": "dg"}, "parallelism": -2}`, "parallelism"},
		{"bad log level", "i.json", `{"session": {"type": "dg"}, "log_level": "loud"}`, "loud"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(context.Background(), writeFile(t, tc.file, tc.contents), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errText)
		})
	}

	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewSessionAppliesDatum(t *testing.T) {
	cfg := &Config{
		Session: SessionConfig{Type: "pinhole"},
		Datum:   &DatumConfig{Name: "flat", SemiMajorAxis: 1000, SemiMinorAxis: 900},
	}
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)

	sess, err := cfg.NewSession(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sess.AlignmentMethod(), test.ShouldEqual, session.AlignHomography)
	datum, err := sess.Datum(ipmatch.AlignmentInput{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datum, test.ShouldResemble, cartography.Datum{Name: "flat", SemiMajorAxis: 1000, SemiMinorAxis: 900})
}
