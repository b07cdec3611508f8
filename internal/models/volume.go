package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// VoxelSize is the physical size of one sample along each axis, in microns.
type VoxelSize struct {
	X, Y, Z float64
}

// Lateral returns the lateral pitch. It fails when the x and y pitches differ,
// since every FWHM is scaled by a single lateral pitch.
func (v VoxelSize) Lateral() (float64, error) {
	if v.X != v.Y {
		return 0, fmt.Errorf("%w: lateral pitch x=%g differs from y=%g", ErrConfigurationMismatch, v.X, v.Y)
	}
	if v.X <= 0 || v.Z <= 0 {
		return 0, fmt.Errorf("%w: voxel size must be positive, got %v", ErrConfigurationMismatch, v)
	}
	return v.X, nil
}

// Volume is a bead-image z-stack indexed (row, col, z).
type Volume struct {
	// Data holds the samples with z as the slowest axis, then rows, then columns.
	Data []float64

	// Rows and Cols are the lateral dimensions of every slice.
	Rows int
	Cols int

	// Depth is the number of slices along the optical axis.
	Depth int
}

// NewVolume allocates a zeroed volume of the given shape.
func NewVolume(rows, cols, depth int) *Volume {
	return &Volume{
		Data:  make([]float64, rows*cols*depth),
		Rows:  rows,
		Cols:  cols,
		Depth: depth,
	}
}

func (v *Volume) index(row, col, z int) int {
	return (z*v.Rows+row)*v.Cols + col
}

// At returns the sample at (row, col, z).
func (v *Volume) At(row, col, z int) float64 {
	return v.Data[v.index(row, col, z)]
}

// Set stores a sample at (row, col, z).
func (v *Volume) Set(row, col, z int, value float64) {
	v.Data[v.index(row, col, z)] = value
}

// Plane returns the backing storage of slice z without copying.
func (v *Volume) Plane(z int) []float64 {
	n := v.Rows * v.Cols
	return v.Data[z*n : (z+1)*n]
}

// Slice returns a copy of slice z as a rows x cols matrix.
func (v *Volume) Slice(z int) (*mat.Dense, error) {
	if z < 0 || z >= v.Depth {
		return nil, fmt.Errorf("%w: axial index %d outside volume depth %d", ErrConfigurationMismatch, z, v.Depth)
	}
	plane := make([]float64, v.Rows*v.Cols)
	copy(plane, v.Plane(z))
	return mat.NewDense(v.Rows, v.Cols, plane), nil
}

// Max returns the largest sample in the volume.
func (v *Volume) Max() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	m := v.Data[0]
	for _, s := range v.Data[1:] {
		if s > m {
			m = s
		}
	}
	return m
}
