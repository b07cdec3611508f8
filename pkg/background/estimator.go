package background

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"empiricalpsf/internal/models"
)

// Estimator computes the background level of a configuration.
type Estimator struct {
	strategies *Strategies
}

// NewEstimator creates an estimator that picks regions from strategies.
func NewEstimator(strategies *Strategies) *Estimator {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Estimator{strategies: strategies}
}

// Strategies returns the estimator's selector table.
func (e *Estimator) Strategies() *Strategies {
	return e.strategies
}

// SelectSlice returns the row of raw with the largest peak energy among the
// non-degenerate rows whose axial index lies strictly inside clean.
func SelectSlice(raw []models.SliceMeasurement, clean models.AxialRange) (models.SliceMeasurement, error) {
	best := -1
	for i, m := range raw {
		if m.Degenerate || !clean.Interior(m.Z) || math.IsNaN(m.PeakEnergy) {
			continue
		}
		if best < 0 || m.PeakEnergy > raw[best].PeakEnergy {
			best = i
		}
	}
	if best < 0 {
		return models.SliceMeasurement{}, fmt.Errorf("%w: no measured slice inside clean range (%d,%d)",
			models.ErrBackgroundRegionInvalid, clean.Start, clean.End)
	}
	return raw[best], nil
}

// RegionStats returns the population mean and standard deviation of the
// finite pixels of img inside mask.
func RegionStats(img mat.Matrix, mask *Mask) (mean, std float64, n int, err error) {
	rows, cols := img.Dims()
	if mask.Rows != rows || mask.Cols != cols {
		return 0, 0, 0, fmt.Errorf("%w: mask is %dx%d, slice is %dx%d",
			models.ErrBackgroundRegionInvalid, mask.Rows, mask.Cols, rows, cols)
	}

	values := make([]float64, 0, mask.Count())
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !mask.In[r*cols+c] {
				continue
			}
			if v := img.At(r, c); !math.IsNaN(v) && !math.IsInf(v, 0) {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return 0, 0, 0, fmt.Errorf("%w: region has no valid samples", models.ErrBackgroundRegionInvalid)
	}

	mean, std = stat.PopMeanStdDev(values, nil)
	return mean, std, len(values), nil
}

// Estimate picks the sharpest slice of the clean range from the raw table,
// selects its background region with the configuration's strategy and
// returns the region's statistics.
//
// Parameters:
//   - cfg: The configuration being measured
//   - raw: Per-slice statistics of the uncorrected volume
//   - positions: Bead positions for cfg.Valid, indexed from cfg.Valid.Start
//
// Returns:
//   - The background statistics
//   - An error wrapping models.ErrBackgroundRegionInvalid when no slice or
//     no pixel qualifies
func (e *Estimator) Estimate(cfg *models.Configuration, raw []models.SliceMeasurement, positions []models.BeadPosition) (models.BackgroundStats, error) {
	best, err := SelectSlice(raw, cfg.Clean)
	if err != nil {
		return models.BackgroundStats{}, err
	}

	img, err := cfg.Volume.Slice(best.Z)
	if err != nil {
		return models.BackgroundStats{}, err
	}

	bead := best.Center
	if i := best.Z - cfg.Valid.Start; i >= 0 && i < len(positions) {
		bead = positions[i]
	}

	mask := e.strategies.For(cfg.Name)(img, bead)
	mean, std, n, err := RegionStats(img, mask)
	if err != nil {
		return models.BackgroundStats{}, fmt.Errorf("slice %d: %w", best.Z, err)
	}

	return models.BackgroundStats{Mean: mean, Std: std, Slice: best.Z, Samples: n}, nil
}
