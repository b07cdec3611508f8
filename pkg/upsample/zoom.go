// Package upsample resamples bead volumes onto a finer grid before
// measurement, using cubic splines along each zoomed axis.
package upsample

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/interp"

	"empiricalpsf/internal/models"
)

// DefaultFactors is the zoom applied to the (row, col, z) axes of each stack.
var DefaultFactors = [3]float64{4, 4, 1}

// Zoom resamples vol by factors along its (row, col, z) axes.
//
// An axis of length n becomes round(n*f) samples, with output sample i taken
// at input coordinate i*(n-1)/(m-1) so both end samples are preserved. Each
// zoomed axis is interpolated with a natural cubic spline; axes with fewer
// than three samples use linear interpolation. Lines are spread over the
// given number of goroutines.
func Zoom(vol *models.Volume, factors [3]float64, workers int) (*models.Volume, error) {
	for axis, f := range factors {
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("invalid zoom factor %g for axis %d", f, axis)
		}
	}
	if workers < 1 {
		workers = 1
	}

	out := vol
	for axis, f := range factors {
		if f == 1 {
			continue
		}
		n := out.Rows
		switch axis {
		case 1:
			n = out.Cols
		case 2:
			n = out.Depth
		}
		m := int(math.Round(float64(n) * f))
		if m < 1 {
			return nil, fmt.Errorf("zoom factor %g leaves axis %d of length %d empty", f, axis, n)
		}

		var err error
		out, err = resampleAxis(out, axis, m, workers)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ZoomVoxel returns the voxel size of a volume zoomed by factors.
func ZoomVoxel(v models.VoxelSize, factors [3]float64) models.VoxelSize {
	return models.VoxelSize{X: v.X / factors[0], Y: v.Y / factors[1], Z: v.Z / factors[2]}
}

// resampleAxis resamples every line of vol along one axis to m samples.
func resampleAxis(vol *models.Volume, axis, m, workers int) (*models.Volume, error) {
	rows, cols, depth := vol.Rows, vol.Cols, vol.Depth
	switch axis {
	case 0:
		rows = m
	case 1:
		cols = m
	case 2:
		depth = m
	}
	out := models.NewVolume(rows, cols, depth)

	// A line is addressed by the two coordinates that stay fixed.
	var n, lines int
	var get func(line, k int) float64
	var set func(line, k int, v float64)
	switch axis {
	case 0:
		n, lines = vol.Rows, vol.Cols*vol.Depth
		get = func(line, k int) float64 { return vol.At(k, line%vol.Cols, line/vol.Cols) }
		set = func(line, k int, v float64) { out.Set(k, line%vol.Cols, line/vol.Cols, v) }
	case 1:
		n, lines = vol.Cols, vol.Rows*vol.Depth
		get = func(line, k int) float64 { return vol.At(line%vol.Rows, k, line/vol.Rows) }
		set = func(line, k int, v float64) { out.Set(line%vol.Rows, k, line/vol.Rows, v) }
	default:
		n, lines = vol.Depth, vol.Rows*vol.Cols
		get = func(line, k int) float64 { return vol.At(line/vol.Cols, line%vol.Cols, k) }
		set = func(line, k int, v float64) { out.Set(line/vol.Cols, line%vol.Cols, k, v) }
	}

	coords := make([]float64, m)
	if m > 1 {
		for i := range coords {
			coords[i] = math.Min(float64(i)*float64(n-1)/float64(m-1), float64(n-1))
		}
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}

	perWorker := (lines + workers - 1) / workers
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * perWorker
		hi := min(lo+perWorker, lines)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(worker, lo, hi int) {
			defer wg.Done()
			ys := make([]float64, n)
			for line := lo; line < hi; line++ {
				for k := range ys {
					ys[k] = get(line, k)
				}
				predictor, err := fitLine(xs, ys)
				if err != nil {
					errs[worker] = fmt.Errorf("axis %d line %d: %w", axis, line, err)
					return
				}
				for k, x := range coords {
					set(line, k, predictor.Predict(x))
				}
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type constant float64

func (c constant) Predict(float64) float64 { return float64(c) }

func fitLine(xs, ys []float64) (interp.Predictor, error) {
	switch {
	case len(xs) == 1:
		return constant(ys[0]), nil
	case len(xs) < 3:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &pl, nil
	}
	var nc interp.NaturalCubic
	if err := nc.Fit(xs, ys); err != nil {
		return nil, err
	}
	return &nc, nil
}
