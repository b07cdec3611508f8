package volumeio

import (
	"fmt"
	"strings"

	"github.com/kshedden/gonpy"

	"empiricalpsf/internal/models"
)

// LoadNpy reads a 3-D NumPy array of shape (rows, cols, depth).
func LoadNpy(path string) (*models.Volume, error) {
	rdr, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if len(rdr.Shape) != 3 {
		return nil, fmt.Errorf("%s: expected a 3-D array, got shape %v", path, rdr.Shape)
	}

	data, err := readFloat64(rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rows, cols, depth := rdr.Shape[0], rdr.Shape[1], rdr.Shape[2]
	if len(data) != rows*cols*depth {
		return nil, fmt.Errorf("%s: %d values for shape %v", path, len(data), rdr.Shape)
	}

	vol := models.NewVolume(rows, cols, depth)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			for z := 0; z < depth; z++ {
				var i int
				if rdr.ColumnMajor {
					i = r + rows*(c+cols*z)
				} else {
					i = (r*cols+c)*depth + z
				}
				vol.Set(r, c, z, data[i])
			}
		}
	}
	return vol, nil
}

// SaveNpy writes vol as a float64 NumPy array of shape (rows, cols, depth).
func SaveNpy(path string, vol *models.Volume) error {
	data := make([]float64, len(vol.Data))
	for r := 0; r < vol.Rows; r++ {
		for c := 0; c < vol.Cols; c++ {
			for z := 0; z < vol.Depth; z++ {
				data[(r*vol.Cols+c)*vol.Depth+z] = vol.At(r, c, z)
			}
		}
	}
	return WriteArray(path, []int{vol.Rows, vol.Cols, vol.Depth}, data)
}

// WriteArray writes row-major float64 data with the given shape.
func WriteArray(path string, shape []int, data []float64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w.Shape = shape
	if err := w.WriteFloat64(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadArray reads a NumPy array as row-major float64 data and its shape.
func ReadArray(path string) ([]float64, []int, error) {
	rdr, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if rdr.ColumnMajor {
		return nil, nil, fmt.Errorf("%s: column-major arrays are not supported", path)
	}
	data, err := readFloat64(rdr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, rdr.Shape, nil
}

// readFloat64 converts the supported NumPy element types to float64.
func readFloat64(rdr *gonpy.NpyReader) ([]float64, error) {
	switch strings.TrimLeft(rdr.Dtype, "<>|=") {
	case "f8":
		return rdr.GetFloat64()
	case "f4":
		v, err := rdr.GetFloat32()
		return widen(v, err)
	case "u2":
		v, err := rdr.GetUint16()
		return widen(v, err)
	case "i2":
		v, err := rdr.GetInt16()
		return widen(v, err)
	case "u1":
		v, err := rdr.GetUint8()
		return widen(v, err)
	case "i4":
		v, err := rdr.GetInt32()
		return widen(v, err)
	case "u4":
		v, err := rdr.GetUint32()
		return widen(v, err)
	case "i8":
		v, err := rdr.GetInt64()
		return widen(v, err)
	}
	return nil, fmt.Errorf("unsupported dtype %q", rdr.Dtype)
}

type number interface {
	~float32 | ~uint8 | ~uint16 | ~uint32 | ~int16 | ~int32 | ~int64
}

func widen[T number](v []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}
