// Package fwhm measures the full width at half maximum of a bead image.
//
// The package works on plain 1-D profiles and on 2-D slices stored as gonum
// matrices. All functions are pure: they never modify their inputs.
package fwhm

import (
	"fmt"
	"math"

	"empiricalpsf/internal/models"
)

// Crossing holds the fractional indices where a profile crosses half of its
// maximum. Left <= Right and both lie in [0, n-1].
type Crossing struct {
	Left  float64
	Right float64
}

// Width returns the distance between the two crossings in samples.
func (c Crossing) Width() float64 {
	return c.Right - c.Left
}

// HalfMaxCrossings finds where a single-peaked signal crosses half its maximum,
// interpolating linearly between the samples that bracket each crossing.
//
// The outermost samples above half maximum define the peak. When the peak
// touches either end of the signal the crossing is reported at that end.
// NaN samples never count as above half maximum.
//
// Parameters:
//   - sig: The profile to analyse; it is assumed to have one dominant peak
//
// Returns:
//   - The left and right crossings
//   - An error wrapping models.ErrDegenerate when no sample exceeds half the
//     maximum or when interpolation yields a non-finite index
func HalfMaxCrossings(sig []float64) (Crossing, error) {
	peak := math.Inf(-1)
	for _, s := range sig {
		if s > peak {
			peak = s
		}
	}
	half := peak / 2

	l, r := -1, -1
	for i, s := range sig {
		if s > half {
			if l < 0 {
				l = i
			}
			r = i
		}
	}
	if l < 0 {
		return Crossing{}, fmt.Errorf("%w: no sample above half maximum %g", models.ErrDegenerate, half)
	}

	var c Crossing
	if l > 0 {
		c.Left = float64(l-1) + (half-sig[l-1])/(sig[l]-sig[l-1])
	}
	if r < len(sig)-1 {
		c.Right = float64(r) + (half-sig[r])/(sig[r+1]-sig[r])
	} else {
		c.Right = float64(len(sig) - 1)
	}

	if math.IsNaN(c.Left) || math.IsInf(c.Left, 0) || math.IsNaN(c.Right) || math.IsInf(c.Right, 0) {
		return c, fmt.Errorf("%w: non-finite crossing (%g, %g)", models.ErrDegenerate, c.Left, c.Right)
	}
	return c, nil
}
