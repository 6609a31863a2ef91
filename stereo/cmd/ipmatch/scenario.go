package main

import (
	"image"
	"path/filepath"

	"github.com/pkg/errors"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/config"
	"go.viam.com/stereo/stereo/ipmatch"
	"go.viam.com/stereo/vision/keypoints"
)

// A Scenario lists the image pairs to process.
type Scenario struct {
	Pairs []PairScenario `json:"pairs" yaml:"pairs"`

	dir string
}

// PairScenario is one image pair. Cameras and interest points are given inline or as paths
// relative to the scenario file.
type PairScenario struct {
	Name string `json:"name" yaml:"name"`

	LeftCamera      *camera.PinholeModel `json:"left_camera,omitempty" yaml:"left_camera,omitempty"`
	RightCamera     *camera.PinholeModel `json:"right_camera,omitempty" yaml:"right_camera,omitempty"`
	LeftCameraFile  string               `json:"left_camera_file,omitempty" yaml:"left_camera_file,omitempty"`
	RightCameraFile string               `json:"right_camera_file,omitempty" yaml:"right_camera_file,omitempty"`

	LeftPoints      []keypoints.InterestPoint `json:"left_points,omitempty" yaml:"left_points,omitempty"`
	RightPoints     []keypoints.InterestPoint `json:"right_points,omitempty" yaml:"right_points,omitempty"`
	LeftPointsFile  string                    `json:"left_points_file,omitempty" yaml:"left_points_file,omitempty"`
	RightPointsFile string                    `json:"right_points_file,omitempty" yaml:"right_points_file,omitempty"`
}

// ReadScenario reads a JSON or YAML scenario file.
func ReadScenario(path string) (*Scenario, error) {
	var s Scenario
	if err := config.DecodeFile(path, &s); err != nil {
		return nil, err
	}
	if len(s.Pairs) == 0 {
		return nil, errors.Errorf("scenario %q has no pairs", path)
	}
	s.dir = filepath.Dir(path)
	return &s, nil
}

func (s *Scenario) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dir, path)
}

func (s *Scenario) camera(inline *camera.PinholeModel, path string) (*camera.PinholeModel, error) {
	switch {
	case inline != nil && path != "":
		return nil, errors.New("camera given both inline and as a file")
	case inline != nil:
		return inline, inline.CheckValid()
	case path != "":
		return camera.NewPinholeModelFromJSONFile(s.resolve(path))
	default:
		return nil, errors.New("missing camera")
	}
}

func (s *Scenario) points(inline []keypoints.InterestPoint, path string) ([]keypoints.InterestPoint, error) {
	if path == "" {
		return inline, nil
	}
	if len(inline) != 0 {
		return nil, errors.New("interest points given both inline and as a file")
	}
	var pts []keypoints.InterestPoint
	if err := config.DecodeFile(s.resolve(path), &pts); err != nil {
		return nil, err
	}
	return pts, nil
}

// Inputs loads every pair into alignment inputs. Image bounds come from the camera sizes.
func (s *Scenario) Inputs() ([]ipmatch.AlignmentInput, error) {
	inputs := make([]ipmatch.AlignmentInput, 0, len(s.Pairs))
	for i, pair := range s.Pairs {
		in, err := s.input(pair)
		if err != nil {
			return nil, errors.Wrapf(err, "pair %d (%s)", i, pair.Name)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (s *Scenario) input(pair PairScenario) (ipmatch.AlignmentInput, error) {
	var in ipmatch.AlignmentInput
	left, err := s.camera(pair.LeftCamera, pair.LeftCameraFile)
	if err != nil {
		return in, errors.Wrap(err, "left")
	}
	right, err := s.camera(pair.RightCamera, pair.RightCameraFile)
	if err != nil {
		return in, errors.Wrap(err, "right")
	}
	leftPoints, err := s.points(pair.LeftPoints, pair.LeftPointsFile)
	if err != nil {
		return in, errors.Wrap(err, "left")
	}
	rightPoints, err := s.points(pair.RightPoints, pair.RightPointsFile)
	if err != nil {
		return in, errors.Wrap(err, "right")
	}
	return ipmatch.AlignmentInput{
		Name:        pair.Name,
		Left:        leftPoints,
		Right:       rightPoints,
		LeftCamera:  left,
		RightCamera: right,
		LeftBounds:  bounds(left),
		RightBounds: bounds(right),
	}, nil
}

func bounds(cam *camera.PinholeModel) image.Rectangle {
	return image.Rect(0, 0, cam.Width, cam.Height)
}
