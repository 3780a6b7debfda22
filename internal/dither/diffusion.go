package dither

// diffusionThreshold is the fixed cut between black and white for all
// error diffusion kernels.
const diffusionThreshold = 128

// Diffuse runs a single left-to-right, top-to-bottom pass over src,
// thresholding each pixel at 128 and spreading the signed error to the
// kernel's neighbors, each weight scaled by factor. Error aimed outside the
// image is dropped.
//
// Error is accumulated in a float buffer that is not clamped during the
// pass, so a neighbor may go below 0 or above 255 before it is visited.
//
// An invalid src is returned as a copy. Taps pointing backwards in scan
// order are skipped.
func Diffuse(src *Raster, k Kernel, factor float64) *Raster {
	if src.Validate() != nil {
		return src.Clone()
	}
	w, h := src.Width, src.Height
	dst := NewRaster(w, h)

	acc := make([]float64, w*h*3)
	for p := 0; p < w*h; p++ {
		acc[p*3] = float64(src.Pix[p*4])
		acc[p*3+1] = float64(src.Pix[p*4+1])
		acc[p*3+2] = float64(src.Pix[p*4+2])
	}

	taps := make([]Tap, 0, len(k.taps))
	for _, t := range k.taps {
		if t.DY < 0 || (t.DY == 0 && t.DX <= 0) {
			continue
		}
		taps = append(taps, Tap{DX: t.DX, DY: t.DY, Weight: t.Weight * factor})
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*w + x
			a := p * 3
			gray := lumaf(acc[a], acc[a+1], acc[a+2])

			var out float64
			if gray >= diffusionThreshold {
				out = 255
			}
			dst.setGray(p*4, uint8(out), src.Pix)

			e := gray - out
			if e == 0 {
				continue
			}
			for _, t := range taps {
				nx, ny := x+t.DX, y+t.DY
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				n := (ny*w + nx) * 3
				d := e * t.Weight
				acc[n] += d
				acc[n+1] += d
				acc[n+2] += d
			}
		}
	}
	return dst
}
