package models

import "fmt"

// AxialRange is a half-open interval [Start, End) of axial indices.
type AxialRange struct {
	Start int
	End   int
}

// Len returns the number of indices in the range.
func (r AxialRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether z lies in [Start, End).
func (r AxialRange) Contains(z int) bool {
	return z >= r.Start && z < r.End
}

// Interior reports whether z lies strictly between Start and End.
// Clean ranges are interpreted this way when picking the background slice.
func (r AxialRange) Interior(z int) bool {
	return z > r.Start && z < r.End
}

// BeadPosition is the lateral bead center of one slice.
type BeadPosition struct {
	Row int
	Col int
}

// Configuration is one objective/medium dataset together with the ranges
// that drive its measurement.
type Configuration struct {
	// Name identifies the configuration, e.g. "O10x/air".
	Name string

	Objective string
	Medium    string

	Volume    *Volume
	VoxelSize VoxelSize

	// Valid is the range of slices where the bead is reliably detectable.
	Valid AxialRange

	// Clean bounds the slices considered when choosing the background slice.
	Clean AxialRange
}

// Validate checks the invariants every later stage relies on.
func (c *Configuration) Validate() error {
	if c.Volume == nil {
		return &ConfigError{Name: c.Name, Err: fmt.Errorf("%w: no volume", ErrConfigurationMismatch)}
	}
	if _, err := c.VoxelSize.Lateral(); err != nil {
		return &ConfigError{Name: c.Name, Err: err}
	}
	if c.Valid.Len() == 0 || c.Valid.Start < 0 || c.Valid.End > c.Volume.Depth {
		return &ConfigError{Name: c.Name, Err: fmt.Errorf("%w: valid range [%d,%d) outside volume depth %d",
			ErrConfigurationMismatch, c.Valid.Start, c.Valid.End, c.Volume.Depth)}
	}
	if c.Clean.End <= c.Clean.Start {
		return &ConfigError{Name: c.Name, Err: fmt.Errorf("%w: empty clean range [%d,%d]",
			ErrConfigurationMismatch, c.Clean.Start, c.Clean.End)}
	}
	return nil
}

// PositionKey identifies the inputs a set of bead positions was computed from.
type PositionKey struct {
	Name   string
	Valid  AxialRange
	Window int

	Rows  int
	Cols  int
	Depth int
}

// NewPositionKey returns the key of a configuration measured with window.
func NewPositionKey(c *Configuration, window int) PositionKey {
	key := PositionKey{Name: c.Name, Valid: c.Valid, Window: window}
	if c.Volume != nil {
		key.Rows, key.Cols, key.Depth = c.Volume.Rows, c.Volume.Cols, c.Volume.Depth
	}
	return key
}

// Fits reports whether every position lies inside the keyed volume and
// there is one position per valid slice.
func (k PositionKey) Fits(positions []BeadPosition) bool {
	if len(positions) != k.Valid.Len() {
		return false
	}
	for _, p := range positions {
		if p.Row < 0 || p.Row >= k.Rows || p.Col < 0 || p.Col >= k.Cols {
			return false
		}
	}
	return true
}
