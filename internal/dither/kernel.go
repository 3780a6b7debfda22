package dither

import (
	"errors"
	"fmt"
	"math"
)

// Tap is one entry of a diffusion kernel: the share of a pixel's
// quantization error pushed to the neighbor at (x+DX, y+DY).
type Tap struct {
	DX     int     `json:"dx" yaml:"dx"`
	DY     int     `json:"dy" yaml:"dy"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Kernel is an error diffusion table. Taps only reach pixels later in scan
// order, so a single pass never revisits a pixel.
type Kernel struct {
	Name string
	taps []Tap
}

// Taps returns a copy of the kernel's taps.
func (k Kernel) Taps() []Tap {
	out := make([]Tap, len(k.taps))
	copy(out, k.taps)
	return out
}

// Sum returns the total weight of the kernel before any diffusion factor.
func (k Kernel) Sum() float64 {
	var s float64
	for _, t := range k.taps {
		s += t.Weight
	}
	return s
}

// Lookahead returns how many rows below the current one receive error.
func (k Kernel) Lookahead() int {
	var n int
	for _, t := range k.taps {
		n = max(n, t.DY)
	}
	return n
}

var errBadKernel = errors.New("bad kernel")

// Validate checks that every tap points forward in scan order and that all
// weights are positive.
func (k Kernel) Validate() error {
	if len(k.taps) == 0 {
		return fmt.Errorf("%w: %s has no taps", errBadKernel, k.Name)
	}
	for _, t := range k.taps {
		if t.DY < 0 || (t.DY == 0 && t.DX <= 0) {
			return fmt.Errorf("%w: %s tap (%d,%d) points backwards", errBadKernel, k.Name, t.DX, t.DY)
		}
		if t.Weight <= 0 || math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) {
			return fmt.Errorf("%w: %s tap (%d,%d) has weight %v", errBadKernel, k.Name, t.DX, t.DY, t.Weight)
		}
	}
	return nil
}

// mustKernel builds a kernel from numerators over a shared divisor.
func mustKernel(name string, divisor float64, rows [][3]int) Kernel {
	k := Kernel{Name: name, taps: make([]Tap, len(rows))}
	for i, s := range rows {
		k.taps[i] = Tap{DX: s[0], DY: s[1], Weight: float64(s[2]) / divisor}
	}
	if err := k.Validate(); err != nil {
		panic(err)
	}
	return k
}

var (
	// FloydSteinberg diffuses over 4 taps with one row of lookahead.
	FloydSteinberg = mustKernel("floyd-steinberg", 16, [][3]int{
		{1, 0, 7},
		{-1, 1, 3}, {0, 1, 5}, {1, 1, 1},
	})

	// JarvisJudiceNinke diffuses over 12 taps with two rows of lookahead.
	JarvisJudiceNinke = mustKernel("jarvis-judice-ninke", 48, [][3]int{
		{1, 0, 7}, {2, 0, 5},
		{-2, 1, 3}, {-1, 1, 5}, {0, 1, 7}, {1, 1, 5}, {2, 1, 3},
		{-2, 2, 1}, {-1, 2, 3}, {0, 2, 5}, {1, 2, 3}, {2, 2, 1},
	})

	// Stucki has the JJN footprint with heavier center weights over 42.
	Stucki = mustKernel("stucki", 42, [][3]int{
		{1, 0, 8}, {2, 0, 4},
		{-2, 1, 2}, {-1, 1, 4}, {0, 1, 8}, {1, 1, 4}, {2, 1, 2},
		{-2, 2, 1}, {-1, 2, 2}, {0, 2, 4}, {1, 2, 2}, {2, 2, 1},
	})

	// Atkinson pushes only 6/8 of the error, so it keeps more contrast.
	Atkinson = mustKernel("atkinson", 8, [][3]int{
		{1, 0, 1}, {2, 0, 1},
		{-1, 1, 1}, {0, 1, 1}, {1, 1, 1},
		{0, 2, 1},
	})
)

// KernelFor returns the diffusion kernel of an error diffusion algorithm.
func KernelFor(a Algorithm) (Kernel, bool) {
	switch a {
	case AlgorithmFloydSteinberg:
		return FloydSteinberg, true
	case AlgorithmJarvisJudiceNinke:
		return JarvisJudiceNinke, true
	case AlgorithmStucki:
		return Stucki, true
	case AlgorithmAtkinson:
		return Atkinson, true
	}
	return Kernel{}, false
}
