package camera

import (
	"github.com/golang/geo/r2"
)

// A PixelTransform relates pixels of a processed image (cropped, scaled, aligned) to raw camera
// pixels. Forward maps raw to processed and Reverse maps processed to raw.
type PixelTransform interface {
	Forward(pixel r2.Point) r2.Point
	Reverse(pixel r2.Point) r2.Point
}

// IdentityTransform leaves pixels unchanged.
type IdentityTransform struct{}

// Forward returns the pixel unchanged.
func (IdentityTransform) Forward(pixel r2.Point) r2.Point { return pixel }

// Reverse returns the pixel unchanged.
func (IdentityTransform) Reverse(pixel r2.Point) r2.Point { return pixel }

// CropTransform describes an image cropped at Offset in raw pixel coordinates.
type CropTransform struct {
	Offset r2.Point
}

// Forward maps a raw pixel into the crop.
func (c CropTransform) Forward(pixel r2.Point) r2.Point { return pixel.Sub(c.Offset) }

// Reverse maps a crop pixel back to the raw image.
func (c CropTransform) Reverse(pixel r2.Point) r2.Point { return pixel.Add(c.Offset) }

// ScaleTransform describes an image resampled by (ScaleX, ScaleY). Zero scales are treated as 1.
type ScaleTransform struct {
	ScaleX, ScaleY float64
}

func (s ScaleTransform) scales() (float64, float64) {
	sx, sy := s.ScaleX, s.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

// Forward maps a raw pixel into the resampled image.
func (s ScaleTransform) Forward(pixel r2.Point) r2.Point {
	sx, sy := s.scales()
	return r2.Point{X: pixel.X * sx, Y: pixel.Y * sy}
}

// Reverse maps a resampled pixel back to the raw image.
func (s ScaleTransform) Reverse(pixel r2.Point) r2.Point {
	sx, sy := s.scales()
	return r2.Point{X: pixel.X / sx, Y: pixel.Y / sy}
}

type composedTransform []PixelTransform

// ComposeTransforms chains transforms in the order they were applied to the raw image. Forward
// runs them first to last and Reverse runs them last to first.
func ComposeTransforms(transforms ...PixelTransform) PixelTransform {
	if len(transforms) == 0 {
		return IdentityTransform{}
	}
	if len(transforms) == 1 {
		return transforms[0]
	}
	return composedTransform(append([]PixelTransform(nil), transforms...))
}

func (c composedTransform) Forward(pixel r2.Point) r2.Point {
	for _, t := range c {
		pixel = t.Forward(pixel)
	}
	return pixel
}

func (c composedTransform) Reverse(pixel r2.Point) r2.Point {
	for i := len(c) - 1; i >= 0; i-- {
		pixel = c[i].Reverse(pixel)
	}
	return pixel
}

// OrIdentity returns t, or IdentityTransform when t is nil.
func OrIdentity(t PixelTransform) PixelTransform {
	if t == nil {
		return IdentityTransform{}
	}
	return t
}
