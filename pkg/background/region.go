// Package background estimates the background fluorescence of a z-stack from
// a region of one slice chosen far from the bead.
package background

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"empiricalpsf/internal/models"
)

// Mask marks the pixels of a slice that belong to a background region.
type Mask struct {
	Rows, Cols int
	In         []bool
}

// NewMask creates an empty mask for a rows x cols slice.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, In: make([]bool, rows*cols)}
}

// Include adds the half-open block [r0,r1) x [c0,c1), clipped to the slice.
func (m *Mask) Include(r0, r1, c0, c1 int) {
	m.fill(r0, r1, c0, c1, true)
}

// Exclude removes the half-open block [r0,r1) x [c0,c1), clipped to the slice.
func (m *Mask) Exclude(r0, r1, c0, c1 int) {
	m.fill(r0, r1, c0, c1, false)
}

func (m *Mask) fill(r0, r1, c0, c1 int, v bool) {
	r0, r1 = max(r0, 0), min(r1, m.Rows)
	c0, c1 = max(c0, 0), min(c1, m.Cols)
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			m.In[r*m.Cols+c] = v
		}
	}
}

// Count returns the number of pixels in the mask.
func (m *Mask) Count() int {
	n := 0
	for _, in := range m.In {
		if in {
			n++
		}
	}
	return n
}

// RegionSelector picks the background region of a slice given the bead
// position in that slice. Selectors must not modify img.
type RegionSelector func(img mat.Matrix, bead models.BeadPosition) *Mask

// FixedRegion selects rows [top, rows*bottomFrac) and the columns within
// cols*halfWidthFrac of the image's vertical midline. Fractional bounds are
// truncated toward zero.
//
// The row span depends on the slice height: with the default parameters any
// slice shorter than 168 rows yields an empty region, which the estimator
// reports as models.ErrBackgroundRegionInvalid.
func FixedRegion(top int, bottomFrac, halfWidthFrac float64) RegionSelector {
	return func(img mat.Matrix, _ models.BeadPosition) *Mask {
		rows, cols := img.Dims()
		m := NewMask(rows, cols)
		mid := float64(cols) / 2
		half := float64(cols) * halfWidthFrac
		m.Include(top, int(float64(rows)*bottomFrac), int(mid-half), int(mid+half))
		return m
	}
}

// BeadCenteredRegion selects a block reaching halfExtentFrac of the slice size
// on each side of the bead, then removes the central part of that block
// reaching maskFrac of the block size on each side of its midpoint.
// Blocks running past the slice edge are clipped.
func BeadCenteredRegion(halfExtentFrac, maskFrac float64) RegionSelector {
	return func(img mat.Matrix, bead models.BeadPosition) *Mask {
		rows, cols := img.Dims()
		m := NewMask(rows, cols)

		hr := float64(rows) * halfExtentFrac
		hc := float64(cols) * halfExtentFrac
		r0 := max(int(float64(bead.Row)-hr), 0)
		r1 := min(int(float64(bead.Row)+hr), rows)
		c0 := max(int(float64(bead.Col)-hc), 0)
		c1 := min(int(float64(bead.Col)+hc), cols)
		if r1 <= r0 || c1 <= c0 {
			return m
		}
		m.Include(r0, r1, c0, c1)

		bh, bw := float64(r1-r0), float64(c1-c0)
		m.Exclude(
			r0+int(bh/2-bh*maskFrac), r0+int(bh/2+bh*maskFrac),
			c0+int(bw/2-bw*maskFrac), c0+int(bw/2+bw*maskFrac),
		)
		return m
	}
}

// Names of the built-in selectors.
const (
	StrategyFixed        = "fixed"
	StrategyBeadCentered = "bead-centered"
)

// Strategies maps configuration names to region selectors. Configurations
// without an override use Default.
type Strategies struct {
	Default   RegionSelector
	Overrides map[string]RegionSelector
}

// DefaultStrategies returns the fixed-region default with no overrides.
func DefaultStrategies() *Strategies {
	return &Strategies{
		Default:   FixedRegion(20, 1.0/8, 1.0/8),
		Overrides: make(map[string]RegionSelector),
	}
}

// Set installs an override for one configuration.
func (s *Strategies) Set(name string, sel RegionSelector) {
	if s.Overrides == nil {
		s.Overrides = make(map[string]RegionSelector)
	}
	s.Overrides[name] = sel
}

// For returns the selector for a configuration.
func (s *Strategies) For(name string) RegionSelector {
	if sel, ok := s.Overrides[name]; ok {
		return sel
	}
	return s.Default
}

// Names lists the configurations that have an override, sorted.
func (s *Strategies) Names() []string {
	names := make([]string, 0, len(s.Overrides))
	for name := range s.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry resolves selector names, as used in configuration files.
type Registry map[string]RegionSelector

// Lookup returns the selector registered under name.
func (r Registry) Lookup(name string) (RegionSelector, error) {
	sel, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown background strategy %q", name)
	}
	return sel, nil
}
