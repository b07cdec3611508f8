// Package cache persists intermediate results between runs as NumPy files so
// upsampling and center finding are not repeated for unchanged datasets.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"empiricalpsf/internal/models"
	"empiricalpsf/pkg/volumeio"
)

// NpyStore keeps one directory of .npy files keyed by configuration name.
type NpyStore struct {
	Dir string
}

// NewNpyStore creates the cache directory if needed.
func NewNpyStore(dir string) (*NpyStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &NpyStore{Dir: dir}, nil
}

// fileKey turns a configuration name into a file name prefix.
func fileKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, name)
}

func (s *NpyStore) path(name, kind string) string {
	return filepath.Join(s.Dir, fileKey(name)+"_"+kind+".npy")
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// headerRows precede the positions in a cached array: (rows, cols, depth)
// of the volume, then (window, valid start, valid end).
const headerRows = 2

func positionHeader(key models.PositionKey) []float64 {
	return []float64{
		float64(key.Rows), float64(key.Cols), float64(key.Depth),
		float64(key.Window), float64(key.Valid.Start), float64(key.Valid.End),
	}
}

// LoadPositions returns the cached bead positions of a configuration. Entries
// cached for another volume shape, center window or valid range, or holding a
// position outside the volume, are treated as missing.
func (s *NpyStore) LoadPositions(key models.PositionKey) ([]models.BeadPosition, bool, error) {
	path := s.path(key.Name, "positions")
	if ok, err := exists(path); !ok {
		return nil, false, err
	}

	data, shape, err := volumeio.ReadArray(path)
	if err != nil {
		return nil, false, err
	}
	if len(shape) != 2 || shape[1] != 3 || shape[0] < headerRows {
		return nil, false, fmt.Errorf("%s: expected shape (n+%d, 3), got %v", path, headerRows, shape)
	}
	for i, v := range positionHeader(key) {
		if data[i] != v {
			return nil, false, nil
		}
	}

	positions := make([]models.BeadPosition, shape[0]-headerRows)
	for i := range positions {
		row := data[3*(i+headerRows):]
		positions[i] = models.BeadPosition{Row: int(row[1]), Col: int(row[2])}
	}
	if !key.Fits(positions) {
		return nil, false, nil
	}
	return positions, true, nil
}

// SavePositions caches bead positions as rows of (z, row, col) after the key
// header.
func (s *NpyStore) SavePositions(key models.PositionKey, positions []models.BeadPosition) error {
	data := positionHeader(key)
	for i, p := range positions {
		data = append(data, float64(key.Valid.Start+i), float64(p.Row), float64(p.Col))
	}
	return volumeio.WriteArray(s.path(key.Name, "positions"), []int{len(positions) + headerRows, 3}, data)
}

// volumeKind names the upsampled volume file after its zoom factors.
func volumeKind(zoom [3]float64) string {
	return fmt.Sprintf("upsampled_%gx%gx%g", zoom[0], zoom[1], zoom[2])
}

// LoadVolume returns the volume cached for a configuration at zoom.
func (s *NpyStore) LoadVolume(name string, zoom [3]float64) (*models.Volume, bool, error) {
	path := s.path(name, volumeKind(zoom))
	if ok, err := exists(path); !ok {
		return nil, false, err
	}
	vol, err := volumeio.LoadNpy(path)
	if err != nil {
		return nil, false, err
	}
	return vol, true, nil
}

// SaveVolume caches a volume upsampled by zoom.
func (s *NpyStore) SaveVolume(name string, zoom [3]float64, vol *models.Volume) error {
	return volumeio.SaveNpy(s.path(name, volumeKind(zoom)), vol)
}
