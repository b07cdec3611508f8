package fwhm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RadialProfile returns the azimuthal average of img about (row, col).
// Entry k is the mean of every pixel whose distance to the center truncates
// to k. Bins that receive no pixel are NaN.
func RadialProfile(img mat.Matrix, row, col float64) []float64 {
	rows, cols := img.Dims()

	// The farthest pixel is one of the corners.
	maxR := 0
	for _, p := range [][2]float64{{0, 0}, {0, float64(cols - 1)}, {float64(rows - 1), 0}, {float64(rows - 1), float64(cols - 1)}} {
		if d := int(math.Hypot(p[0]-row, p[1]-col)); d > maxR {
			maxR = d
		}
	}

	sums := make([]float64, maxR+1)
	counts := make([]int, maxR+1)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			k := int(math.Hypot(float64(i)-row, float64(j)-col))
			sums[k] += img.At(i, j)
			counts[k]++
		}
	}

	profile := make([]float64, len(sums))
	for k := range sums {
		if counts[k] == 0 {
			profile[k] = math.NaN()
			continue
		}
		profile[k] = sums[k] / float64(counts[k])
	}
	return profile
}
