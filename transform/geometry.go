// Package transform contains the two-view geometry used by stereo matching: epipolar lines,
// plane homographies and their robust estimation, and ray triangulation.
package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: the centroid
// moves to the origin and the mean distance to it becomes sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 || math.IsNaN(d) {
		return nil, nil, errors.New("cannot normalize coincident points")
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, nil
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// nullVector returns the right singular vector of the smallest singular value, which spans the
// null space of a matrix with one fewer independent row than columns. Only V is computed, so the
// cost is linear in the number of rows.
func nullVector(m mat.Matrix) ([]float64, error) {
	rows, cols := m.Dims()
	if rows < cols {
		// thin V only has rows columns; pad with zero rows so the null space is kept
		padded := mat.NewDense(cols, cols, nil)
		padded.Slice(0, rows, 0, cols).(*mat.Dense).Copy(m)
		m = padded
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThinV); !ok {
		return nil, errors.New("failed to factorize matrix")
	}
	var v mat.Dense
	svd.VTo(&v)
	return mat.Col(nil, cols-1, &v), nil
}
