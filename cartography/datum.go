// Package cartography holds reference ellipsoids and the conversions between Cartesian body-fixed
// coordinates and geodetic longitude, latitude and height.
package cartography

import (
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/stereo/camera"
)

// ErrRayMiss is returned when a ray does not intersect the datum.
var ErrRayMiss = errors.Wrap(camera.ErrGeometryMiss, "ray misses datum")

// A Datum is an ellipsoid of revolution about the z axis. Units are meters.
type Datum struct {
	Name          string  `json:"name" yaml:"name"`
	SemiMajorAxis float64 `json:"semi_major_axis" yaml:"semi_major_axis"`
	SemiMinorAxis float64 `json:"semi_minor_axis" yaml:"semi_minor_axis"`
}

// Well known datums.
var (
	WGS84 = Datum{Name: "WGS_1984", SemiMajorAxis: 6378137, SemiMinorAxis: 6356752.314245}
	Moon  = Datum{Name: "D_MOON", SemiMajorAxis: 1737400, SemiMinorAxis: 1737400}
	Mars  = Datum{Name: "D_MARS", SemiMajorAxis: 3396190, SemiMinorAxis: 3396190}
)

var namedDatums = map[string]Datum{
	"wgs84":    WGS84,
	"wgs_1984": WGS84,
	"earth":    WGS84,
	"d_moon":   Moon,
	"moon":     Moon,
	"d_mars":   Mars,
	"mars":     Mars,
}

// NamedDatum looks up a well known datum by case-insensitive name.
func NamedDatum(name string) (Datum, error) {
	d, ok := namedDatums[strings.ToLower(name)]
	if !ok {
		return Datum{}, errors.Errorf("unknown datum %q", name)
	}
	return d, nil
}

// NewSphere returns a spherical datum.
func NewSphere(name string, radius float64) Datum {
	return Datum{Name: name, SemiMajorAxis: radius, SemiMinorAxis: radius}
}

// NewDatumFromRadii builds a datum from the three radii of a triaxial body, averaging the two
// equatorial radii.
func NewDatumFromRadii(name string, radii r3.Vector) Datum {
	return Datum{Name: name, SemiMajorAxis: (radii.X + radii.Y) / 2, SemiMinorAxis: radii.Z}
}

// Validate returns an error if the axes are not positive.
func (d Datum) Validate() error {
	if d.SemiMajorAxis <= 0 || d.SemiMinorAxis <= 0 {
		return errors.Errorf("datum %q must have positive axes, got (%v, %v)", d.Name, d.SemiMajorAxis, d.SemiMinorAxis)
	}
	return nil
}

// Flattening returns (a - b) / a.
func (d Datum) Flattening() float64 {
	return (d.SemiMajorAxis - d.SemiMinorAxis) / d.SemiMajorAxis
}

// EccentricitySquared returns the first eccentricity squared.
func (d Datum) EccentricitySquared() float64 {
	a2 := d.SemiMajorAxis * d.SemiMajorAxis
	return (a2 - d.SemiMinorAxis*d.SemiMinorAxis) / a2
}

// IntersectRay returns the first point where the ray origin + t*dir, t >= 0, meets the datum
// surface. The ellipsoid is scaled to a sphere along z before solving.
func (d Datum) IntersectRay(origin, dir r3.Vector) (r3.Vector, error) {
	if err := d.Validate(); err != nil {
		return r3.Vector{}, err
	}
	a := d.SemiMajorAxis
	zScale := a / d.SemiMinorAxis
	o := r3.Vector{X: origin.X, Y: origin.Y, Z: origin.Z * zScale}
	v := r3.Vector{X: dir.X, Y: dir.Y, Z: dir.Z * zScale}

	qa := v.Dot(v)
	if qa == 0 {
		return r3.Vector{}, errors.Wrap(ErrRayMiss, "zero length direction")
	}
	qb := 2 * o.Dot(v)
	qc := o.Dot(o) - a*a
	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return r3.Vector{}, errors.Wrapf(ErrRayMiss, "origin %v direction %v", origin, dir)
	}
	t := (-qb - math.Sqrt(disc)) / (2 * qa)
	if t < 0 {
		return r3.Vector{}, errors.Wrapf(ErrRayMiss, "intersection behind origin %v", origin)
	}
	return origin.Add(dir.Mul(t)), nil
}
