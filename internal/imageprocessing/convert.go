package imageprocessing

import (
	"image"
	"image/draw"

	"github.com/rmitchellscott/ditherbox/internal/dither"
)

// ToNRGBA converts any image to non-premultiplied RGBA with its origin at
// (0, 0). An existing *image.NRGBA with a zero origin is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}

	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	return nrgba
}

// ToRaster copies an image into a raster. Samples are non-premultiplied so
// a pixel's color does not depend on its alpha.
func ToRaster(img image.Image) *dither.Raster {
	nrgba := ToNRGBA(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	r := dither.NewRaster(w, h)
	for y := 0; y < h; y++ {
		copy(r.Pix[y*w*4:(y+1)*w*4], nrgba.Pix[y*nrgba.Stride:y*nrgba.Stride+w*4])
	}
	return r
}

// FromRaster wraps a copy of the raster as an image.
func FromRaster(r *dither.Raster) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	copy(img.Pix, r.Pix)
	return img
}
