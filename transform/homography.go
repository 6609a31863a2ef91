package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) that maps pixels of one image plane to
// another. Indices are [row][column]. Homographies built by this package are scaled so that
// H[2][2] == 1.
type Homography [3][3]float64

// NewHomography creates a homography from 9 row-major values.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = vals[3*i+j]
		}
	}
	return &h, nil
}

// IdentityHomography returns the homography that leaves every pixel in place.
func IdentityHomography() *Homography {
	h, err := homographyFromDense(eye(3))
	if err != nil {
		panic(err)
	}
	return h
}

func homographyFromDense(m *mat.Dense) (*Homography, error) {
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = m.At(i, j)
		}
	}
	return h.normalized()
}

// At returns the element at row, col.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Data returns the 9 row-major values.
func (h *Homography) Data() []float64 {
	out := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		out = append(out, h[i][:]...)
	}
	return out
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Det2x2 returns the determinant of the upper-left 2x2 block, the local area scale of the mapping.
func (h *Homography) Det2x2() float64 {
	return h[0][0]*h[1][1] - h[0][1]*h[1][0]
}

// ToDense returns the homography as a gonum matrix.
func (h *Homography) ToDense() *mat.Dense {
	return mat.NewDense(3, 3, h.Data())
}

// Inverse returns the homography mapping in the opposite direction.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.ToDense()); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return homographyFromDense(&inv)
}

func (h Homography) normalized() (*Homography, error) {
	scale := h[2][2]
	if math.Abs(scale) < 1e-12 || math.IsNaN(scale) {
		return nil, errors.Errorf("cannot normalize homography with H[2][2] = %v", scale)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] /= scale
		}
	}
	return &h, nil
}

// TransferError is the distance between dst and src mapped through the homography.
func (h *Homography) TransferError(src, dst r2.Point) float64 {
	return h.Apply(src).Sub(dst).Norm()
}

// EstimateHomography fits the homography mapping src onto dst with the normalized direct linear
// transform. At least 4 correspondences are required.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}
	srcNorm, T1, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	dstNorm, T2, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcNorm {
		s, d := srcNorm[i], dstNorm[i]
		a.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}
	h, err := nullVector(a)
	if err != nil {
		return nil, err
	}
	hNorm := mat.NewDense(3, 3, h)

	// undo normalization: T2^-1 @ Hn @ T1
	var T2inv, out mat.Dense
	if err := T2inv.Inverse(T2); err != nil {
		return nil, errors.Wrap(err, "normalization is not invertible")
	}
	out.Mul(&T2inv, hNorm)
	out.Mul(&out, T1)
	return homographyFromDense(&out)
}

// Valid determinant range for CheckHomography.
const (
	MinHomographyDet = 0.1
	MaxHomographyDet = 10.0
)

// CheckHomography rejects an alignment supported by fewer than half of the smaller point set, or
// one whose 2x2 determinant shows a collapsing or exploding area scale.
func CheckHomography(h *Homography, nSrc, nDst int, inliers []int) error {
	required := nSrc
	if nDst < required {
		required = nDst
	}
	required /= 2
	if len(inliers) < required {
		return &InsufficientInliersError{Inliers: len(inliers), Required: required, Points: nSrc}
	}
	det := h.Det2x2()
	if !(det > MinHomographyDet && det < MaxHomographyDet) {
		return &DegenerateTransformError{Det: det, Min: MinHomographyDet, Max: MaxHomographyDet}
	}
	return nil
}
