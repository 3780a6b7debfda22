package imageprocessing

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// GetScaledDimensions calculates the dimensions that fit within the target
// while preserving aspect ratio. A zero target dimension is unbounded and
// images are never enlarged.
func GetScaledDimensions(srcWidth, srcHeight, maxWidth, maxHeight int) (int, int) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return srcWidth, srcHeight
	}

	scale := 1.0
	if maxWidth > 0 && srcWidth > maxWidth {
		scale = float64(maxWidth) / float64(srcWidth)
	}
	if maxHeight > 0 && srcHeight > maxHeight {
		scale = min(scale, float64(maxHeight)/float64(srcHeight))
	}
	if scale == 1.0 {
		return srcWidth, srcHeight
	}

	newWidth := max(int(float64(srcWidth)*scale), 1)
	newHeight := max(int(float64(srcHeight)*scale), 1)
	return newWidth, newHeight
}

// ResizeToFit downscales an image to fit within maxWidth x maxHeight while
// preserving aspect ratio. Images that already fit are returned unchanged.
func ResizeToFit(img image.Image, maxWidth, maxHeight int) image.Image {
	if img == nil {
		return nil
	}

	bounds := img.Bounds()
	newWidth, newHeight := GetScaledDimensions(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)
	if newWidth == bounds.Dx() && newHeight == bounds.Dy() {
		return img
	}

	// Use CatmullRom interpolation for the sharpest downscale
	resized := image.NewNRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, xdraw.Src, nil)
	return resized
}
