// Package dither reduces RGBA rasters to black and white using error
// diffusion kernels or ordered (Bayer) threshold matrices.
//
// All transforms collapse color to BT.601 luminance before thresholding.
// They never modify their input and never share state between calls.
package dither

import (
	"errors"
	"fmt"
)

// ErrInvalidRaster is returned by Validate when a raster's sample slice does
// not match its dimensions.
var ErrInvalidRaster = errors.New("invalid raster")

// Raster is an 8-bit RGBA pixel buffer, row-major with the origin at the top
// left. Pix holds Width*Height*4 interleaved samples.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRaster allocates a zeroed (transparent black) raster.
func NewRaster(width, height int) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// Validate reports whether the sample slice length matches the dimensions.
func (r *Raster) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil raster", ErrInvalidRaster)
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidRaster, r.Width, r.Height)
	}
	if want := r.Width * r.Height * 4; len(r.Pix) != want {
		return fmt.Errorf("%w: %dx%d needs %d samples, got %d", ErrInvalidRaster, r.Width, r.Height, want, len(r.Pix))
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Raster) Clone() *Raster {
	if r == nil {
		return nil
	}
	pix := make([]uint8, len(r.Pix))
	copy(pix, r.Pix)
	return &Raster{Width: r.Width, Height: r.Height, Pix: pix}
}

// Offset returns the index of the R sample of pixel (x, y).
func (r *Raster) Offset(x, y int) int {
	return (y*r.Width + x) * 4
}

// IsBinary reports whether every pixel's color channels are all 0 or all 255.
func (r *Raster) IsBinary() bool {
	for i := 0; i+3 < len(r.Pix); i += 4 {
		v := r.Pix[i]
		if v != 0 && v != 255 {
			return false
		}
		if r.Pix[i+1] != v || r.Pix[i+2] != v {
			return false
		}
	}
	return true
}

// setGray writes v to the color channels of the pixel at offset i and copies
// alpha from src.
func (r *Raster) setGray(i int, v uint8, src []uint8) {
	r.Pix[i] = v
	r.Pix[i+1] = v
	r.Pix[i+2] = v
	r.Pix[i+3] = src[i+3]
}
