package dither

import (
	"fmt"
	"math"
	"strings"
)

// Algorithm selects a dithering transform.
type Algorithm int

const (
	// AlgorithmUnknown is any selector Apply does not recognize. Apply passes
	// the input through unchanged for it.
	AlgorithmUnknown Algorithm = iota
	AlgorithmFloydSteinberg
	AlgorithmJarvisJudiceNinke
	AlgorithmStucki
	AlgorithmBayerOrdered
	AlgorithmAtkinson

	algorithmCount // sentinel for validation
)

var algorithmNames = [algorithmCount]string{
	"unknown",
	"floyd-steinberg",
	"jarvis-judice-ninke",
	"stucki",
	"bayer-ordered",
	"atkinson",
}

var algorithmAliases = map[string]Algorithm{
	"floydsteinberg":    AlgorithmFloydSteinberg,
	"fs":                AlgorithmFloydSteinberg,
	"jarvisjudiceninke": AlgorithmJarvisJudiceNinke,
	"jjn":               AlgorithmJarvisJudiceNinke,
	"stucki":            AlgorithmStucki,
	"bayer":             AlgorithmBayerOrdered,
	"bayerordered":      AlgorithmBayerOrdered,
	"ordered":           AlgorithmBayerOrdered,
	"atkinson":          AlgorithmAtkinson,
}

// Algorithms lists every supported algorithm in display order.
func Algorithms() []Algorithm {
	return []Algorithm{
		AlgorithmFloydSteinberg,
		AlgorithmJarvisJudiceNinke,
		AlgorithmStucki,
		AlgorithmBayerOrdered,
		AlgorithmAtkinson,
	}
}

// String returns the canonical kebab-case name.
func (a Algorithm) String() string {
	if a >= 0 && a < algorithmCount {
		return algorithmNames[a]
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	return a > AlgorithmUnknown && a < algorithmCount
}

// Diffusion reports whether a is an error diffusion algorithm.
func (a Algorithm) Diffusion() bool {
	_, ok := KernelFor(a)
	return ok
}

// ParseAlgorithm maps a name to an Algorithm. Matching ignores case, dashes,
// underscores and spaces, so "Floyd-Steinberg", "floydSteinberg" and "fs"
// are equivalent. Unrecognized names return AlgorithmUnknown.
func ParseAlgorithm(name string) Algorithm {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
	if a, ok := algorithmAliases[key]; ok {
		return a
	}
	return AlgorithmUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// AlgorithmUnknown rather than failing.
func (a *Algorithm) UnmarshalText(text []byte) error {
	*a = ParseAlgorithm(string(text))
	return nil
}

// Parameter bounds.
const (
	MinThreshold = 0
	MaxThreshold = 255
	MinFactor    = 0.5
	MaxFactor    = 2.0
)

// Params are the caller-supplied dithering parameters. Threshold and
// MatrixSize only affect BayerOrdered; ErrorDiffusionFactor only affects the
// diffusion kernels.
type Params struct {
	Algorithm            Algorithm `json:"algorithm" yaml:"algorithm"`
	Threshold            int       `json:"threshold" yaml:"threshold"`
	ErrorDiffusionFactor float64   `json:"error_diffusion_factor" yaml:"error_diffusion_factor"`
	MatrixSize           int       `json:"matrix_size" yaml:"matrix_size"`
}

// DefaultParams returns Floyd-Steinberg at full strength with the 4x4 matrix
// and a mid threshold for Bayer.
func DefaultParams() Params {
	return Params{
		Algorithm:            AlgorithmFloydSteinberg,
		Threshold:            128,
		ErrorDiffusionFactor: 1.0,
		MatrixSize:           DefaultMatrixSize,
	}
}

// Normalize clamps Threshold and ErrorDiffusionFactor into range and
// replaces an unsupported MatrixSize with the default. It returns the
// effective parameters and one warning per adjustment. A matrix fallback is
// only reported for AlgorithmBayerOrdered.
func (p Params) Normalize() (Params, []Warning) {
	var warnings []Warning
	out := p

	if t := clampInt(p.Threshold, MinThreshold, MaxThreshold); t != p.Threshold {
		out.Threshold = t
		warnings = append(warnings, Warning{
			Kind:      WarningClamped,
			Field:     "threshold",
			Requested: float64(p.Threshold),
			Effective: float64(t),
		})
	}

	if f := clampFloat(p.ErrorDiffusionFactor, MinFactor, MaxFactor); f != p.ErrorDiffusionFactor {
		out.ErrorDiffusionFactor = f
		warnings = append(warnings, Warning{
			Kind:      WarningClamped,
			Field:     "error_diffusion_factor",
			Requested: p.ErrorDiffusionFactor,
			Effective: f,
		})
	}

	// The matrix size is always normalized but only worth a warning when
	// the Bayer path will use it.
	if m, ok := LookupBayer(p.MatrixSize); !ok {
		out.MatrixSize = m.Size()
		if p.Algorithm != AlgorithmBayerOrdered {
			return out, warnings
		}
		warnings = append(warnings, Warning{
			Kind:      WarningMatrixFallback,
			Field:     "matrix_size",
			Requested: float64(p.MatrixSize),
			Effective: float64(m.Size()),
		})
	}

	return out, warnings
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// clampFloat maps NaN to lo.
func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
