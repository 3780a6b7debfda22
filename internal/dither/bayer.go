package dither

import (
	"fmt"
	"runtime"
	"sync"
)

// DefaultMatrixSize is used when a requested Bayer size is unsupported.
const DefaultMatrixSize = 4

// BayerMatrix is a square threshold map holding a permutation of
// [0, size*size-1]. It is tiled across the image.
type BayerMatrix struct {
	size  int
	cells []int
}

func newBayer(rows [][]int) BayerMatrix {
	m := BayerMatrix{size: len(rows)}
	for _, row := range rows {
		m.cells = append(m.cells, row...)
	}
	if err := m.Validate(); err != nil {
		panic(err)
	}
	return m
}

var (
	// Bayer2 is the 2x2 index matrix.
	Bayer2 = newBayer([][]int{
		{0, 2},
		{3, 1},
	})

	// Bayer4 is the 4x4 matrix and the fallback for unsupported sizes.
	Bayer4 = newBayer([][]int{
		{15, 7, 13, 5},
		{3, 11, 1, 9},
		{12, 4, 14, 6},
		{0, 8, 2, 10},
	})
)

// SupportedMatrixSizes lists the Bayer sizes LookupBayer accepts.
var SupportedMatrixSizes = []int{2, 4}

// LookupBayer returns the matrix of the given size. When the size is not
// supported it returns Bayer4 and false.
func LookupBayer(size int) (BayerMatrix, bool) {
	switch size {
	case 2:
		return Bayer2, true
	case 4:
		return Bayer4, true
	}
	return Bayer4, false
}

// Size returns the side length of the matrix.
func (m BayerMatrix) Size() int { return m.size }

// At returns the matrix value for pixel (x, y), tiling the matrix.
func (m BayerMatrix) At(x, y int) int {
	return m.cells[(y%m.size)*m.size+x%m.size]
}

// Rows returns a copy of the matrix as nested rows.
func (m BayerMatrix) Rows() [][]int {
	rows := make([][]int, m.size)
	for y := range rows {
		rows[y] = make([]int, m.size)
		copy(rows[y], m.cells[y*m.size:(y+1)*m.size])
	}
	return rows
}

// Validate checks the matrix is square and a permutation of [0, size^2-1].
func (m BayerMatrix) Validate() error {
	n := m.size * m.size
	if m.size <= 0 || len(m.cells) != n {
		return fmt.Errorf("bayer matrix: %d cells for size %d", len(m.cells), m.size)
	}
	seen := make([]bool, n)
	for _, v := range m.cells {
		if v < 0 || v >= n || seen[v] {
			return fmt.Errorf("bayer matrix: value %d is not a permutation entry", v)
		}
		seen[v] = true
	}
	return nil
}

// Ordered thresholds every pixel of src against the tiled matrix scaled by
// threshold/size^2. A pixel turns white only when its luminance is strictly
// greater than its cell threshold. Rows are processed concurrently since no
// pixel depends on another.
//
// An invalid src is returned as a copy. A matrix that fails Validate, such
// as the zero value, is replaced by Bayer4.
func Ordered(src *Raster, m BayerMatrix, threshold int) *Raster {
	if src.Validate() != nil {
		return src.Clone()
	}
	if m.Validate() != nil {
		m = Bayer4
	}
	dst := NewRaster(src.Width, src.Height)
	scale := float64(clampInt(threshold, MinThreshold, MaxThreshold)) / float64(m.size*m.size)

	// Precompute one threshold per matrix cell.
	cells := make([]float64, len(m.cells))
	for i, v := range m.cells {
		cells[i] = float64(v) * scale
	}

	orderedRows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := cells[(y%m.size)*m.size:]
			for x := 0; x < src.Width; x++ {
				i := src.Offset(x, y)
				gray := Luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
				var v uint8
				if gray > row[x%m.size] {
					v = 255
				}
				dst.setGray(i, v, src.Pix)
			}
		}
	}

	workers := min(runtime.GOMAXPROCS(0), src.Height)
	if workers <= 1 {
		orderedRows(0, src.Height)
		return dst
	}

	band := (src.Height + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < src.Height; y0 += band {
		y1 := min(y0+band, src.Height)
		wg.Add(1)
		go func() {
			defer wg.Done()
			orderedRows(y0, y1)
		}()
	}
	wg.Wait()
	return dst
}
