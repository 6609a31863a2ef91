package cartography

import (
	"math"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
)

// GeodeticPosition is a longitude and latitude in degrees with a height in meters above the datum.
type GeodeticPosition struct {
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Height float64 `json:"height"`
}

// Point returns the horizontal position.
func (g GeodeticPosition) Point() *geo.Point {
	return geo.NewPoint(g.Lat, g.Lon)
}

const (
	geodeticMaxIterations = 20
	geodeticTolerance     = 1e-12
)

// CartesianToGeodetic converts a body-fixed point to geodetic coordinates by fixed point
// iteration on the latitude.
func (d Datum) CartesianToGeodetic(p r3.Vector) GeodeticPosition {
	a := d.SemiMajorAxis
	e2 := d.EccentricitySquared()
	lon := math.Atan2(p.Y, p.X)
	horiz := math.Hypot(p.X, p.Y)

	if horiz == 0 {
		lat := math.Pi / 2
		if p.Z < 0 {
			lat = -lat
		}
		return GeodeticPosition{Lon: radToDeg(lon), Lat: radToDeg(lat), Height: math.Abs(p.Z) - d.SemiMinorAxis}
	}

	lat := math.Atan2(p.Z, horiz*(1-e2))
	for i := 0; i < geodeticMaxIterations; i++ {
		sinLat := math.Sin(lat)
		n := a / math.Sqrt(1-e2*sinLat*sinLat)
		h := horiz/math.Cos(lat) - n
		next := math.Atan2(p.Z, horiz*(1-e2*n/(n+h)))
		if math.Abs(next-lat) < geodeticTolerance {
			lat = next
			break
		}
		lat = next
	}

	sinLat, cosLat := math.Sincos(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	height := horiz*cosLat + p.Z*sinLat - a*a/n
	return GeodeticPosition{Lon: radToDeg(lon), Lat: radToDeg(lat), Height: height}
}

// GeodeticToCartesian converts geodetic coordinates to a body-fixed point.
func (d Datum) GeodeticToCartesian(g GeodeticPosition) r3.Vector {
	a := d.SemiMajorAxis
	e2 := d.EccentricitySquared()
	sinLat, cosLat := math.Sincos(degToRad(g.Lat))
	sinLon, cosLon := math.Sincos(degToRad(g.Lon))
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	return r3.Vector{
		X: (n + g.Height) * cosLat * cosLon,
		Y: (n + g.Height) * cosLat * sinLon,
		Z: (n*(1-e2) + g.Height) * sinLat,
	}
}

func degToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func radToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}
