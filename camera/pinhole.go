package camera

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px" yaml:"width_px"`
	Height int     `json:"height_px" yaml:"height_px"`
	Fx     float64 `json:"fx" yaml:"fx"`
	Fy     float64 `json:"fy" yaml:"fy"`
	Ppx    float64 `json:"ppx" yaml:"ppx"`
	Ppy    float64 `json:"ppy" yaml:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PinholeModel is a frame camera with no lens distortion. Rotation rows are the camera's x, y and
// z (boresight) axes expressed in world coordinates.
type PinholeModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters" yaml:"intrinsic_parameters"`
	Center                   [3]float64    `json:"center" yaml:"center"`
	Rotation                 [3][3]float64 `json:"rotation" yaml:"rotation"`
}

// NewPinholeModel returns a validated pinhole model.
func NewPinholeModel(intrinsics *PinholeCameraIntrinsics, center r3.Vector, rotation [3][3]float64) (*PinholeModel, error) {
	model := &PinholeModel{
		PinholeCameraIntrinsics: intrinsics,
		Center:                  [3]float64{center.X, center.Y, center.Z},
		Rotation:                rotation,
	}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

// NewPinholeModelFromJSONFile takes in a file path to a JSON and turns it into a PinholeModel.
func NewPinholeModelFromJSONFile(jsonPath string) (*PinholeModel, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	model := &PinholeModel{}
	if err := json.Unmarshal(byteValue, model); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

// CheckValid checks the intrinsics and that the rotation rows are orthonormal.
func (m *PinholeModel) CheckValid() error {
	if err := m.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	const tol = 1e-6
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			dot := m.axis(i).Dot(m.axis(j))
			want := 0.
			if i == j {
				want = 1.
			}
			if math.Abs(dot-want) > tol {
				return errors.Errorf("rotation rows %d and %d are not orthonormal (dot = %v)", i, j, dot)
			}
		}
	}
	return nil
}

func (m *PinholeModel) axis(i int) r3.Vector {
	return r3.Vector{X: m.Rotation[i][0], Y: m.Rotation[i][1], Z: m.Rotation[i][2]}
}

func (m *PinholeModel) center() r3.Vector {
	return r3.Vector{X: m.Center[0], Y: m.Center[1], Z: m.Center[2]}
}

// PixelToVector returns the unit world direction through the pixel.
func (m *PinholeModel) PixelToVector(pixel r2.Point) (r3.Vector, error) {
	if m.PinholeCameraIntrinsics == nil {
		return r3.Vector{}, errors.Wrap(ErrPixelToRay, "no intrinsics")
	}
	if math.IsNaN(pixel.X) || math.IsNaN(pixel.Y) {
		return r3.Vector{}, errors.Wrapf(ErrPixelToRay, "invalid pixel %v", pixel)
	}
	xOverZ := (pixel.X - m.Ppx) / m.Fx
	yOverZ := (pixel.Y - m.Ppy) / m.Fy
	dir := m.axis(0).Mul(xOverZ).Add(m.axis(1).Mul(yOverZ)).Add(m.axis(2))
	return dir.Normalize(), nil
}

// PointToPixel projects a world point to a pixel. Points on or behind the image plane fail.
func (m *PinholeModel) PointToPixel(point r3.Vector) (r2.Point, error) {
	if m.PinholeCameraIntrinsics == nil {
		return r2.Point{}, errors.Wrap(ErrPointToPixel, "no intrinsics")
	}
	rel := point.Sub(m.center())
	z := rel.Dot(m.axis(2))
	if z <= 0 {
		return r2.Point{}, errors.Wrapf(ErrPointToPixel, "point %v is behind the camera", point)
	}
	x := rel.Dot(m.axis(0))
	y := rel.Dot(m.axis(1))
	return r2.Point{X: (x/z)*m.Fx + m.Ppx, Y: (y/z)*m.Fy + m.Ppy}, nil
}

// CameraCenter returns the optical center. A pinhole camera has the same center for every pixel.
func (m *PinholeModel) CameraCenter(_ r2.Point) (r3.Vector, error) {
	return m.center(), nil
}
