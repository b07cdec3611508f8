package fwhm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"empiricalpsf/internal/models"
)

// DefaultHalfWidth is the number of lines on each side of the center that are
// averaged into a cross-section profile.
const DefaultHalfWidth = 1

// Measurer computes the FWHM and energy statistics of single slices.
type Measurer struct {
	// HalfWidth is the cross-section band half width in pixels.
	HalfWidth int
}

// NewMeasurer creates a measurer with the default cross-section band.
func NewMeasurer() *Measurer {
	return &Measurer{HalfWidth: DefaultHalfWidth}
}

// Measure measures one background-corrected slice about the bead center.
//
// The x and y FWHM come from band-averaged cross sections, the radial FWHM
// from the azimuthal average (doubled, since the radial profile only covers
// positive radii). All widths are scaled by the lateral voxel pitch.
//
// Energies are taken on a copy of the slice with negative values clamped to
// zero. The cross-section energies average the x and y profiles with equal
// weight, which assumes the bead is close to round.
//
// A profile without a usable half-max crossing does not abort the
// measurement: the affected widths are NaN, the row is flagged degenerate and
// the returned error wraps models.ErrDegenerate. A voxel size with unequal
// lateral pitch returns models.ErrConfigurationMismatch and no row.
func (m *Measurer) Measure(img mat.Matrix, center models.BeadPosition, voxel models.VoxelSize) (models.SliceMeasurement, error) {
	pitch, err := voxel.Lateral()
	if err != nil {
		return models.SliceMeasurement{}, err
	}

	out := models.SliceMeasurement{
		Center:     center,
		FWHMCrossX: math.NaN(),
		FWHMCrossY: math.NaN(),
		FWHMCross:  math.NaN(),
		FWHMRadial: math.NaN(),
	}

	rows, cols := img.Dims()
	if center.Row < 0 || center.Row >= rows || center.Col < 0 || center.Col >= cols {
		out.PeakEnergy = math.NaN()
		out.TotalEnergy = math.NaN()
		out.FWHMEnergy = math.NaN()
		out.CrossTotalEnergy = math.NaN()
		out.CrossFWHMEnergy = math.NaN()
		out.RadialMax = math.NaN()
		out.Degenerate = true
		out.Reason = fmt.Sprintf("center (%d,%d) outside %dx%d slice", center.Row, center.Col, rows, cols)
		return out, fmt.Errorf("%w: %s", models.ErrDegenerate, out.Reason)
	}

	var reasons []string

	crossX := CrossSection(img, center.Row, center.Col, m.HalfWidth, AxisX)
	crossY := CrossSection(img, center.Row, center.Col, m.HalfWidth, AxisY)

	hx, errX := HalfMaxCrossings(crossX)
	if errX == nil {
		out.FWHMCrossX = hx.Width() * pitch
	} else {
		reasons = append(reasons, "x cross-section: "+errX.Error())
	}
	hy, errY := HalfMaxCrossings(crossY)
	if errY == nil {
		out.FWHMCrossY = hy.Width() * pitch
	} else {
		reasons = append(reasons, "y cross-section: "+errY.Error())
	}
	if errX == nil && errY == nil {
		out.FWHMCross = (out.FWHMCrossX + out.FWHMCrossY) / 2
	}

	radial := RadialProfile(img, float64(center.Row), float64(center.Col))
	out.RadialMax = nanMax(radial)
	if hr, err := HalfMaxCrossings(radial); err == nil {
		out.FWHMRadial = 2 * hr.Width() * pitch
	} else {
		reasons = append(reasons, "radial profile: "+err.Error())
	}

	clamped := clampedCopy(img)
	out.PeakEnergy = clamped.At(center.Row, center.Col)
	data := clamped.RawMatrix().Data
	out.TotalEnergy = floats.Sum(data)
	for _, v := range data {
		if v > out.PeakEnergy/2 {
			out.FWHMEnergy += v
		}
	}

	posX, posY := clampNegative(crossX), clampNegative(crossY)
	out.CrossTotalEnergy = (floats.Sum(posX) + floats.Sum(posY)) / 2
	if errX == nil && errY == nil {
		out.CrossFWHMEnergy = (IntegrateBetween(posX, hx) + IntegrateBetween(posY, hy)) / 2
	} else {
		out.CrossFWHMEnergy = math.NaN()
	}

	if len(reasons) > 0 {
		out.Degenerate = true
		out.Reason = strings.Join(reasons, "; ")
		return out, fmt.Errorf("%w: %s", models.ErrDegenerate, out.Reason)
	}
	return out, nil
}

// IntegrateBetween sums sig between two fractional indices. Samples strictly
// inside [ceil(Left), floor(Right)) count fully; the sample containing each
// crossing is weighted by the fraction of it that lies inside the interval.
func IntegrateBetween(sig []float64, h Crossing) float64 {
	if len(sig) == 0 {
		return 0
	}
	lo := int(math.Ceil(h.Left))
	hi := int(math.Floor(h.Right))
	var sum float64
	for i := lo; i < hi && i < len(sig); i++ {
		sum += sig[i]
	}
	leftPixel := int(math.Floor(h.Left))
	sum += sig[leftPixel] * (float64(lo) - h.Left)
	rightPixel := min(hi, len(sig)-1)
	sum += sig[rightPixel] * (h.Right - float64(hi))
	return sum
}

// IsDegenerate reports whether err marks a per-slice degenerate result.
func IsDegenerate(err error) bool {
	return errors.Is(err, models.ErrDegenerate)
}

func clampedCopy(img mat.Matrix) *mat.Dense {
	c := mat.DenseCopyOf(img)
	c.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, c)
	return c
}

func clampNegative(sig []float64) []float64 {
	out := make([]float64, len(sig))
	for i, v := range sig {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

func nanMax(sig []float64) float64 {
	m := math.NaN()
	for _, v := range sig {
		if !math.IsNaN(v) && (math.IsNaN(m) || v > m) {
			m = v
		}
	}
	return m
}
