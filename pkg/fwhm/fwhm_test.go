package fwhm

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"empiricalpsf/internal/models"
)

const gaussianFWHMFactor = 2.3548200450309493

// gaussianImage creates a rows x cols slice holding a 2-D Gaussian of the given
// sigma and peak centered at (row, col) on top of a constant offset.
func gaussianImage(rows, cols int, row, col, sigma, peak, offset float64) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dr := float64(i) - row
			dc := float64(j) - col
			img.Set(i, j, offset+peak*math.Exp(-(dr*dr+dc*dc)/(2*sigma*sigma)))
		}
	}
	return img
}

func gaussianSignal(n int, center, sigma float64) []float64 {
	sig := make([]float64, n)
	for i := range sig {
		d := float64(i) - center
		sig[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	return sig
}

// TestHalfMaxCrossingsSymmetric verifies that symmetric peaks give crossings
// symmetric about the peak index
func TestHalfMaxCrossingsSymmetric(t *testing.T) {
	testCases := []struct {
		name   string
		n      int
		center float64
		sigma  float64
	}{
		{"narrow", 41, 20, 2},
		{"wide", 101, 50, 12},
		{"even length", 40, 19.5, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := HalfMaxCrossings(gaussianSignal(tc.n, tc.center, tc.sigma))
			if err != nil {
				t.Fatalf("HalfMaxCrossings failed: %v", err)
			}
			if mid := (c.Left + c.Right) / 2; math.Abs(mid-tc.center) > 1e-9 {
				t.Errorf("Expected crossings centered on %.2f, got %.6f (%v)", tc.center, mid, c)
			}
			if c.Left > c.Right || c.Left < 0 || c.Right > float64(tc.n-1) {
				t.Errorf("Crossings out of order or out of bounds: %v", c)
			}
			expected := gaussianFWHMFactor * tc.sigma
			if math.Abs(c.Width()-expected) > 0.05*expected {
				t.Errorf("Expected width ~%.3f, got %.3f", expected, c.Width())
			}
		})
	}
}

// TestHalfMaxCrossingsInterpolation checks the linear interpolation by hand
func TestHalfMaxCrossingsInterpolation(t *testing.T) {
	c, err := HalfMaxCrossings([]float64{0, 2, 10, 4, 0})
	if err != nil {
		t.Fatalf("HalfMaxCrossings failed: %v", err)
	}
	// half = 5 and only sample 2 lies above it.
	if math.Abs(c.Left-1.375) > 1e-12 {
		t.Errorf("Expected left crossing 1.375, got %f", c.Left)
	}
	if math.Abs(c.Right-(2+5.0/6.0)) > 1e-12 {
		t.Errorf("Expected right crossing %f, got %f", 2+5.0/6.0, c.Right)
	}
}

// TestHalfMaxCrossingsEdges verifies peaks touching the ends of the signal
func TestHalfMaxCrossingsEdges(t *testing.T) {
	left, err := HalfMaxCrossings([]float64{10, 8, 4, 1})
	if err != nil {
		t.Fatalf("HalfMaxCrossings failed: %v", err)
	}
	if left.Left != 0 {
		t.Errorf("Expected left crossing clamped to 0, got %f", left.Left)
	}

	right, err := HalfMaxCrossings([]float64{1, 4, 8, 10})
	if err != nil {
		t.Fatalf("HalfMaxCrossings failed: %v", err)
	}
	if right.Right != 3 {
		t.Errorf("Expected right crossing clamped to 3, got %f", right.Right)
	}
}

// TestHalfMaxCrossingsDegenerate verifies flat and empty signals are reported
func TestHalfMaxCrossingsDegenerate(t *testing.T) {
	for _, sig := range [][]float64{
		nil,
		{0, 0, 0, 0},
		{-3, -2, -5},
		{math.NaN(), math.NaN()},
	} {
		if _, err := HalfMaxCrossings(sig); !errors.Is(err, models.ErrDegenerate) {
			t.Errorf("HalfMaxCrossings(%v): expected ErrDegenerate, got %v", sig, err)
		}
	}
}

// TestRadialProfile checks bin contents on a tiny image
func TestRadialProfile(t *testing.T) {
	img := mat.NewDense(3, 3, []float64{
		1, 2, 1,
		2, 9, 2,
		1, 2, 1,
	})
	profile := RadialProfile(img, 1, 1)
	if len(profile) != 2 {
		t.Fatalf("Expected 2 bins, got %d (%v)", len(profile), profile)
	}
	if profile[0] != 9 {
		t.Errorf("Expected center bin 9, got %f", profile[0])
	}
	// Distances 1 and sqrt(2) both truncate to bin 1.
	if math.Abs(profile[1]-1.5) > 1e-12 {
		t.Errorf("Expected bin 1 mean 1.5, got %f", profile[1])
	}
}

// TestRadialProfileRotation verifies that rotating a centered pattern by 90
// degrees leaves its radial profile unchanged
func TestRadialProfileRotation(t *testing.T) {
	n := 41
	img := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := math.Hypot(float64(i-20), float64(j-20))
			v := math.Exp(-d * d / 50)
			if d > 8 && d < 11 {
				v += 0.5
			}
			// Break the mirror symmetry so the rotation matters.
			v += 0.01 * float64(i)
			img.Set(i, j, v)
		}
	}
	rotated := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rotated.Set(j, n-1-i, img.At(i, j))
		}
	}

	a := RadialProfile(img, 20, 20)
	b := RadialProfile(rotated, 20, 20)
	if len(a) != len(b) {
		t.Fatalf("Profile lengths differ: %d vs %d", len(a), len(b))
	}
	for k := range a {
		if math.Abs(a[k]-b[k]) > 1e-9 {
			t.Errorf("Bin %d differs after rotation: %f vs %f", k, a[k], b[k])
		}
	}
}

// TestCrossSection verifies the band average and bounds handling
func TestCrossSection(t *testing.T) {
	img := mat.NewDense(4, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	})

	x := CrossSection(img, 1, 1, 1, AxisX)
	expectedX := []float64{4, 5, 6}
	for i := range expectedX {
		if x[i] != expectedX[i] {
			t.Errorf("x profile[%d]: expected %f, got %f", i, expectedX[i], x[i])
		}
	}

	// Column 0 band is clipped to columns 0 and 1.
	y := CrossSection(img, 0, 0, 1, AxisY)
	expectedY := []float64{1.5, 4.5, 7.5, 10.5}
	for i := range expectedY {
		if y[i] != expectedY[i] {
			t.Errorf("y profile[%d]: expected %f, got %f", i, expectedY[i], y[i])
		}
	}
}

// TestIntegrateBetween checks fractional pixel weighting at both crossings
func TestIntegrateBetween(t *testing.T) {
	sig := []float64{1, 2, 3, 4, 5}
	got := IntegrateBetween(sig, Crossing{Left: 0.5, Right: 3.25})
	// full samples 1 and 2, half of sample 0, a quarter of sample 3
	expected := 2 + 3 + 0.5*1 + 0.25*4
	if math.Abs(got-expected) > 1e-12 {
		t.Errorf("Expected %f, got %f", expected, got)
	}

	whole := IntegrateBetween(sig, Crossing{Left: 0, Right: 4})
	if whole != 10 {
		t.Errorf("Expected integer bounds to sum [0,4) = 10, got %f", whole)
	}
}

// TestMeasureGaussian verifies both FWHM paths against the analytic width
func TestMeasureGaussian(t *testing.T) {
	sigma := 5.0
	img := gaussianImage(100, 100, 50, 50, sigma, 1000, 0)
	voxel := models.VoxelSize{X: 0.5, Y: 0.5, Z: 1}

	m, err := NewMeasurer().Measure(img, models.BeadPosition{Row: 50, Col: 50}, voxel)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if m.Degenerate {
		t.Fatalf("Unexpected degenerate row: %s", m.Reason)
	}

	expected := gaussianFWHMFactor * sigma * voxel.X
	for name, got := range map[string]float64{
		"fwhm_cross_sect_x": m.FWHMCrossX,
		"fwhm_cross_sect_y": m.FWHMCrossY,
		"fwhm_cross_sect":   m.FWHMCross,
	} {
		if math.Abs(got-expected) > 0.25*voxel.X {
			t.Errorf("%s: expected %.3f, got %.3f", name, expected, got)
		}
	}
	// Truncating distances to integer bins shifts the radial profile by about
	// half a bin on each side.
	if math.Abs(m.FWHMRadial-expected) > 1.5*voxel.X {
		t.Errorf("fwhm_radial: expected %.3f, got %.3f", expected, m.FWHMRadial)
	}
	if m.PeakEnergy != 1000 {
		t.Errorf("Expected peak energy 1000, got %f", m.PeakEnergy)
	}
	analyticTotal := 1000 * 2 * math.Pi * sigma * sigma
	if math.Abs(m.TotalEnergy-analyticTotal) > 0.01*analyticTotal {
		t.Errorf("Expected total energy ~%.1f, got %.1f", analyticTotal, m.TotalEnergy)
	}
	if m.FWHMEnergy <= 0 || m.FWHMEnergy >= m.TotalEnergy {
		t.Errorf("FWHM energy %.1f should lie in (0, total %.1f)", m.FWHMEnergy, m.TotalEnergy)
	}
	if m.CrossFWHMEnergy <= 0 || m.CrossFWHMEnergy >= m.CrossTotalEnergy {
		t.Errorf("Cross FWHM energy %.1f should lie in (0, cross total %.1f)", m.CrossFWHMEnergy, m.CrossTotalEnergy)
	}
}

// TestMeasureClampsNegative verifies energies ignore negative pixels
func TestMeasureClampsNegative(t *testing.T) {
	img := mat.NewDense(5, 5, []float64{
		-1, -1, -1, -1, -1,
		-1, 0, 2, 0, -1,
		-1, 2, 8, 2, -1,
		-1, 0, 2, 0, -1,
		-1, -1, -1, -1, -1,
	})
	m, err := NewMeasurer().Measure(img, models.BeadPosition{Row: 2, Col: 2}, models.VoxelSize{X: 1, Y: 1, Z: 1})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if m.PeakEnergy != 8 {
		t.Errorf("Expected peak energy 8, got %f", m.PeakEnergy)
	}
	if m.TotalEnergy != 16 {
		t.Errorf("Expected total energy 16, got %f", m.TotalEnergy)
	}
	if m.FWHMEnergy != 8 {
		t.Errorf("Expected FWHM energy 8, got %f", m.FWHMEnergy)
	}
	if img.At(0, 0) != -1 {
		t.Errorf("Measure must not modify its input")
	}
}

// TestMeasureIsPure verifies repeated measurements are identical
func TestMeasureIsPure(t *testing.T) {
	img := gaussianImage(60, 70, 31, 35, 4, 500, -2)
	center := models.BeadPosition{Row: 31, Col: 35}
	voxel := models.VoxelSize{X: 0.25, Y: 0.25, Z: 1}
	m := NewMeasurer()

	a, errA := m.Measure(img, center, voxel)
	b, errB := m.Measure(img, center, voxel)
	if (errA == nil) != (errB == nil) {
		t.Fatalf("Errors differ between runs: %v vs %v", errA, errB)
	}
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Errorf("Measurements differ between runs:\n%+v\n%+v", a, b)
	}
}

// TestMeasureErrors covers the configuration and degenerate paths
func TestMeasureErrors(t *testing.T) {
	img := gaussianImage(20, 20, 10, 10, 2, 100, 0)
	m := NewMeasurer()

	if _, err := m.Measure(img, models.BeadPosition{Row: 10, Col: 10}, models.VoxelSize{X: 1, Y: 2, Z: 1}); !errors.Is(err, models.ErrConfigurationMismatch) {
		t.Errorf("Expected ErrConfigurationMismatch for unequal pitch, got %v", err)
	}

	row, err := m.Measure(img, models.BeadPosition{Row: 25, Col: 10}, models.VoxelSize{X: 1, Y: 1, Z: 1})
	if !IsDegenerate(err) {
		t.Errorf("Expected degenerate error for center outside slice, got %v", err)
	}
	if !row.Degenerate || row.Reason == "" {
		t.Errorf("Expected flagged row, got %+v", row)
	}

	flat := mat.NewDense(10, 10, nil)
	row, err = m.Measure(flat, models.BeadPosition{Row: 5, Col: 5}, models.VoxelSize{X: 1, Y: 1, Z: 1})
	if !IsDegenerate(err) {
		t.Errorf("Expected degenerate error for flat slice, got %v", err)
	}
	if !row.Degenerate || !math.IsNaN(row.FWHMCross) {
		t.Errorf("Expected flagged row with NaN width, got %+v", row)
	}
}
