package fwhm

import (
	"gonum.org/v1/gonum/mat"
)

// Axis selects the direction of a cross-section profile.
type Axis int

const (
	// AxisX runs along the columns of a slice through the center row.
	AxisX Axis = iota
	// AxisY runs along the rows of a slice through the center column.
	AxisY
)

func (a Axis) String() string {
	if a == AxisY {
		return "y"
	}
	return "x"
}

// CrossSection averages a band of 2*halfWidth+1 lines centered on the bead and
// returns the resulting profile along axis. Lines outside the image are skipped.
func CrossSection(img mat.Matrix, row, col, halfWidth int, axis Axis) []float64 {
	rows, cols := img.Dims()

	center, lines, length := row, rows, cols
	if axis == AxisY {
		center, lines, length = col, cols, rows
	}
	lo := max(center-halfWidth, 0)
	hi := min(center+halfWidth, lines-1)

	profile := make([]float64, length)
	if hi < lo {
		return profile
	}
	for line := lo; line <= hi; line++ {
		for k := 0; k < length; k++ {
			if axis == AxisX {
				profile[k] += img.At(line, k)
			} else {
				profile[k] += img.At(k, line)
			}
		}
	}
	n := float64(hi - lo + 1)
	for k := range profile {
		profile[k] /= n
	}
	return profile
}
