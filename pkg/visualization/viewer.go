// Package visualization renders orthogonal sections through a bead volume.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"empiricalpsf/internal/models"
)

// Viewer extracts sections from a volume, scaled so that the volume maximum
// maps to full 16-bit white.
type Viewer struct {
	vol *models.Volume

	// scale converts a sample to the 16-bit range
	scale float64
}

// NewViewer creates a new section viewer
func NewViewer(vol *models.Volume) *Viewer {
	scale := 0.0
	if peak := vol.Max(); peak > 0 && !math.IsInf(peak, 0) {
		scale = 65535 / peak
	}
	return &Viewer{vol: vol, scale: scale}
}

func (v *Viewer) gray(value float64) color.Gray16 {
	if math.IsNaN(value) {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value*v.scale)))}
}

// ExtractSection extracts a 2D section along the specified axis. Axis x gives
// the y-z plane at column position (depth runs left to right), axis y gives the
// x-z plane at row position (depth runs top to bottom), axis z gives the slice
// at that depth.
func (v *Viewer) ExtractSection(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.vol

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= vol.Cols {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Cols)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Rows))
		for row := 0; row < vol.Rows; row++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, row, v.gray(vol.At(row, position, z)))
			}
		}

	case "y", "Y":
		if position >= vol.Rows {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Rows)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Cols, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for col := 0; col < vol.Cols; col++ {
				img.SetGray16(col, z, v.gray(vol.At(position, col, z)))
			}
		}

	case "z", "Z":
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Cols, vol.Rows))
		for row := 0; row < vol.Rows; row++ {
			for col := 0; col < vol.Cols; col++ {
				img.SetGray16(col, row, v.gray(vol.At(row, col, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a sub-volume
func (v *Viewer) ExtractRegion(startRow, startCol, startZ, rows, cols, depth int) (*models.Volume, error) {
	if startRow < 0 || startCol < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if rows <= 0 || cols <= 0 || depth <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startRow+rows > v.vol.Rows || startCol+cols > v.vol.Cols || startZ+depth > v.vol.Depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := models.NewVolume(rows, cols, depth)
	for z := 0; z < depth; z++ {
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				region.Set(row, col, z, v.vol.At(startRow+row, startCol+col, startZ+z))
			}
		}
	}
	return region, nil
}

// SaveSection saves a section as a deflate-compressed 16-bit TIFF
func SaveSection(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveBeadSections writes the x, y and z sections through the bead at the
// best-focus slice of a report. A positive halfExtent crops the sections to
// that many pixels on each side of the bead, clipped to the volume; intensities
// stay scaled to the whole volume. It returns the written file names.
func (v *Viewer) SaveBeadSections(report *models.Report, outputDir, prefix string, halfExtent int) ([]string, error) {
	best, ok := report.BestFocus()
	if !ok {
		return nil, fmt.Errorf("%s: no measurable slice: %w", report.Config.Name, models.ErrDegenerate)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	view, bead := v, best.Center
	if halfExtent > 0 {
		r0, c0 := max(bead.Row-halfExtent, 0), max(bead.Col-halfExtent, 0)
		r1, c1 := min(bead.Row+halfExtent+1, v.vol.Rows), min(bead.Col+halfExtent+1, v.vol.Cols)
		region, err := v.ExtractRegion(r0, c0, 0, r1-r0, c1-c0, v.vol.Depth)
		if err != nil {
			return nil, err
		}
		view = &Viewer{vol: region, scale: v.scale}
		bead = models.BeadPosition{Row: bead.Row - r0, Col: bead.Col - c0}
	}

	positions := map[string]int{"x": bead.Col, "y": bead.Row, "z": best.Z}
	names := map[string]int{"x": best.Center.Col, "y": best.Center.Row, "z": best.Z}
	var files []string
	for _, axis := range []string{"x", "y", "z"} {
		img, err := view.ExtractSection(axis, positions[axis])
		if err != nil {
			return files, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_section_%s_%03d.tif", prefix, axis, names[axis]))
		if err := SaveSection(img, filename); err != nil {
			return files, err
		}
		files = append(files, filename)
	}
	return files, nil
}
