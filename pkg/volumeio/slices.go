// Package volumeio loads bead z-stacks from disk and writes them back as
// NumPy arrays.
package volumeio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"empiricalpsf/internal/models"
)

// Load reads a volume from path. Directories are read as one image per
// z-slice, TIFF files as one page per z-slice and files ending in .npy as a
// NumPy array of shape (rows, cols, depth).
func Load(path string) (*models.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadSliceDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return LoadNpy(path)
	case ".tif", ".tiff":
		return LoadTiffStack(path)
	}
	return nil, fmt.Errorf("unsupported volume source %s: expected a directory of slices, a TIFF stack or a .npy file", path)
}

// LoadSliceDir loads every TIFF or PNG image in dir as one z-slice. Files are
// ordered by the number embedded in their names; all slices must share the
// same dimensions.
func LoadSliceDir(dir string) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".tif", ".tiff", ".png":
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("no TIFF or PNG slices found in %s", dir)
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	var vol *models.Volume
	for z, name := range imageFiles {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}

		bounds := img.Bounds()
		if vol == nil {
			vol = models.NewVolume(bounds.Dy(), bounds.Dx(), len(imageFiles))
		} else if bounds.Dy() != vol.Rows || bounds.Dx() != vol.Cols {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				name, bounds.Dy(), bounds.Dx(), vol.Rows, vol.Cols)
		}
		copy(vol.Plane(z), grayValues(img))
	}
	return vol, nil
}

// extractNumber extracts the digits of a filename as one number.
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return num
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		return png.Decode(file)
	}
	return tiff.Decode(file)
}

// grayValues returns the intensities of img in row-major order. 16-bit and
// 8-bit gray images keep their stored values; other formats go through the
// 16-bit gray model.
func grayValues(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	values := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px, py := bounds.Min.X+x, bounds.Min.Y+y
			var v float64
			switch g := img.(type) {
			case *image.Gray16:
				v = float64(g.Gray16At(px, py).Y)
			case *image.Gray:
				v = float64(g.GrayAt(px, py).Y)
			default:
				v = float64(color.Gray16Model.Convert(img.At(px, py)).(color.Gray16).Y)
			}
			values[y*width+x] = v
		}
	}
	return values
}
