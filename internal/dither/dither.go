package dither

import (
	"fmt"
	"log/slog"
)

// WarningKind classifies a recoverable problem Apply worked around.
type WarningKind string

const (
	WarningClamped          WarningKind = "clamped"
	WarningMatrixFallback   WarningKind = "matrix_fallback"
	WarningUnknownAlgorithm WarningKind = "unknown_algorithm"
	WarningInvalidRaster    WarningKind = "invalid_raster"
)

// Warning records a parameter Apply had to adjust or a request it could not
// honor.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Field     string      `json:"field,omitempty"`
	Requested float64     `json:"requested,omitempty"`
	Effective float64     `json:"effective,omitempty"`
	Message   string      `json:"message,omitempty"`
}

func (w Warning) String() string {
	switch w.Kind {
	case WarningClamped:
		return fmt.Sprintf("%s %v clamped to %v", w.Field, w.Requested, w.Effective)
	case WarningMatrixFallback:
		return fmt.Sprintf("matrix size %v is not supported; using %vx%v", w.Requested, w.Effective, w.Effective)
	}
	if w.Message != "" {
		return w.Message
	}
	return string(w.Kind)
}

// Result is the outcome of Apply. Raster never aliases the input.
type Result struct {
	Raster *Raster
	// Params are the parameters actually used after clamping.
	Params   Params
	Warnings []Warning
	// Applied is false when the input was passed through untouched.
	Applied bool
}

// Degraded reports whether Apply fell back or skipped work. Clamping alone
// does not count.
func (r Result) Degraded() bool {
	for _, w := range r.Warnings {
		if w.Kind != WarningClamped {
			return true
		}
	}
	return false
}

// Logger receives fallback warnings. It defaults to slog.Default().
var Logger *slog.Logger

func logger() *slog.Logger {
	if Logger != nil {
		return Logger
	}
	return slog.Default()
}

// Apply normalizes p, runs the selected algorithm over src and returns a new
// raster. An unrecognized algorithm returns an unchanged copy of src with
// Applied set to false.
func Apply(src *Raster, p Params) Result {
	eff, warnings := p.Normalize()

	if err := src.Validate(); err != nil {
		w := Warning{Kind: WarningInvalidRaster, Message: err.Error()}
		logger().Warn("Raster rejected; passing through", "error", err)
		return Result{Raster: src.Clone(), Params: eff, Warnings: append(warnings, w)}
	}

	for _, w := range warnings {
		if w.Kind == WarningMatrixFallback {
			logger().Warn("Matrix size is not supported; using default",
				"requested", int(w.Requested), "size", int(w.Effective))
		}
	}

	res := Result{Params: eff, Warnings: warnings, Applied: true}
	switch eff.Algorithm {
	case AlgorithmBayerOrdered:
		m, _ := LookupBayer(eff.MatrixSize)
		res.Raster = Ordered(src, m, eff.Threshold)
	case AlgorithmFloydSteinberg, AlgorithmJarvisJudiceNinke, AlgorithmStucki, AlgorithmAtkinson:
		k, _ := KernelFor(eff.Algorithm)
		res.Raster = Diffuse(src, k, eff.ErrorDiffusionFactor)
	default:
		logger().Warn("Unknown dithering algorithm; passing through", "algorithm", eff.Algorithm.String())
		res.Raster = src.Clone()
		res.Applied = false
		res.Warnings = append(res.Warnings, Warning{
			Kind:    WarningUnknownAlgorithm,
			Field:   "algorithm",
			Message: fmt.Sprintf("algorithm %s is not supported; image returned unchanged", eff.Algorithm),
		})
	}
	return res
}
