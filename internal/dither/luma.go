package dither

// ITU-R BT.601 luma weights in thousandths. Summing integer products and
// dividing once keeps gray inputs exact: Luma(v, v, v) == v.
const (
	lumaR = 299
	lumaG = 587
	lumaB = 114
)

// Luma converts an RGB triple to luminance in [0, 255] using BT.601 weights
// (0.299, 0.587, 0.114). Gray inputs map to themselves, so uniform 128
// thresholds to white; a float64 weighted sum gives 127.99999999999999 there.
func Luma(r, g, b uint8) float64 {
	return float64(lumaR*int(r)+lumaG*int(g)+lumaB*int(b)) / 1000
}

// lumaf is Luma over unclamped accumulator values. The explicit conversions
// stop the compiler from fusing the multiply-adds, which would make results
// differ between architectures.
func lumaf(r, g, b float64) float64 {
	return (float64(lumaR*r) + float64(lumaG*g) + float64(lumaB*b)) / 1000
}
