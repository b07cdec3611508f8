// Package center locates the lateral bead center in each slice of a z-stack.
package center

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"empiricalpsf/internal/models"
)

// DefaultWindow is the number of slices averaged around each axial index.
const DefaultWindow = 50

// Find estimates the bead center at axial index iz.
//
// The window slices starting at iz - window/2 are averaged (indices past
// either end of the volume are clamped to the first or last slice, so edge
// slices weigh more there) and the brightest pixel of the average is taken
// as the center. Ties resolve to the first pixel in row-major order.
//
// Parameters:
//   - vol: The z-stack to search
//   - iz: Axial index of the slice of interest
//   - window: Number of slices to average; must be positive
//
// Returns:
//   - The bead position
//   - The averaged image the maximum was taken from
//   - An error wrapping models.ErrConfigurationMismatch when iz is outside
//     the volume or the window is empty
func Find(vol *models.Volume, iz, window int) (models.BeadPosition, *mat.Dense, error) {
	if iz < 0 || iz >= vol.Depth {
		return models.BeadPosition{}, nil, fmt.Errorf("%w: axial index %d outside volume depth %d",
			models.ErrConfigurationMismatch, iz, vol.Depth)
	}
	if window < 1 {
		return models.BeadPosition{}, nil, fmt.Errorf("%w: window must be positive, got %d",
			models.ErrConfigurationMismatch, window)
	}
	if vol.Rows == 0 || vol.Cols == 0 {
		return models.BeadPosition{}, nil, fmt.Errorf("%w: empty slices", models.ErrConfigurationMismatch)
	}

	avg := make([]float64, vol.Rows*vol.Cols)
	start := iz - window/2
	for k := 0; k < window; k++ {
		z := min(max(start+k, 0), vol.Depth-1)
		floats.Add(avg, vol.Plane(z))
	}
	floats.Scale(1/float64(window), avg)

	idx := floats.MaxIdx(avg)
	pos := models.BeadPosition{Row: idx / vol.Cols, Col: idx % vol.Cols}
	return pos, mat.NewDense(vol.Rows, vol.Cols, avg), nil
}

// FindRange runs Find for every index in r, spreading contiguous blocks of
// slices over the given number of goroutines. Entry i of the result belongs
// to axial index r.Start+i.
func FindRange(vol *models.Volume, r models.AxialRange, window, workers int) ([]models.BeadPosition, error) {
	n := r.Len()
	positions := make([]models.BeadPosition, n)
	if n == 0 {
		return positions, nil
	}
	if workers < 1 {
		workers = 1
	}

	perWorker := (n + workers - 1) / workers
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * perWorker
		hi := min(lo+perWorker, n)
		if lo >= n {
			break
		}

		wg.Add(1)
		go func(worker, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				pos, _, err := Find(vol, r.Start+i, window)
				if err != nil {
					errs[worker] = err
					return
				}
				positions[i] = pos
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return positions, nil
}
