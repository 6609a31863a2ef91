package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// TriangulateRays intersects the rays c1 + s*d1 and c2 + t*d2 with the midpoint method. It returns
// the midpoint of the shortest segment between the rays and that segment's length, which is zero
// when the rays truly intersect.
func TriangulateRays(c1, d1, c2, d2 r3.Vector) (r3.Vector, float64, error) {
	w0 := c1.Sub(c2)
	a := d1.Dot(d1)
	b := d1.Dot(d2)
	c := d2.Dot(d2)
	d := d1.Dot(w0)
	e := d2.Dot(w0)

	denom := a*c - b*b
	if denom <= 1e-12*a*c {
		return r3.Vector{}, 0, ErrParallelRays
	}
	s := (b*e - c*d) / denom
	t := (a*e - b*d) / denom
	if s < 0 || t < 0 {
		return r3.Vector{}, 0, errors.Errorf("rays meet behind a camera (s=%v, t=%v)", s, t)
	}

	p1 := c1.Add(d1.Mul(s))
	p2 := c2.Add(d2.Mul(t))
	return p1.Add(p2).Mul(0.5), p1.Sub(p2).Norm(), nil
}
