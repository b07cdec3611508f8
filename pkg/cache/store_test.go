package cache

import (
	"path/filepath"
	"testing"

	"empiricalpsf/internal/models"
)

// TestPositions verifies cached positions are returned for the same key only
func TestPositions(t *testing.T) {
	store, err := NewNpyStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewNpyStore failed: %v", err)
	}
	key := models.PositionKey{
		Name:   "O4x/air",
		Valid:  models.AxialRange{Start: 50, End: 53},
		Window: 50,
		Rows:   64, Cols: 48, Depth: 200,
	}

	if _, ok, err := store.LoadPositions(key); ok || err != nil {
		t.Fatalf("Expected a miss on an empty cache, got ok=%v err=%v", ok, err)
	}

	positions := []models.BeadPosition{{Row: 10, Col: 11}, {Row: 12, Col: 13}, {Row: 14, Col: 15}}
	if err := store.SavePositions(key, positions); err != nil {
		t.Fatalf("SavePositions failed: %v", err)
	}

	got, ok, err := store.LoadPositions(key)
	if err != nil || !ok {
		t.Fatalf("Expected a hit, got ok=%v err=%v", ok, err)
	}
	for i := range positions {
		if got[i] != positions[i] {
			t.Errorf("Position %d: expected %v, got %v", i, positions[i], got[i])
		}
	}

	tests := []struct {
		name   string
		modify func(k *models.PositionKey)
	}{
		{"shifted valid range", func(k *models.PositionKey) { k.Valid = models.AxialRange{Start: 51, End: 54} }},
		{"other configuration", func(k *models.PositionKey) { k.Name = "O4x/edof" }},
		{"other center window", func(k *models.PositionKey) { k.Window = 10 }},
		{"upsampled volume", func(k *models.PositionKey) { k.Rows, k.Cols = 4*k.Rows, 4*k.Cols }},
		{"other depth", func(k *models.PositionKey) { k.Depth = 201 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := key
			tt.modify(&k)
			if _, ok, err := store.LoadPositions(k); ok || err != nil {
				t.Errorf("Expected a miss, got ok=%v err=%v", ok, err)
			}
		})
	}
}

// TestPositionsOutsideVolume verifies entries that cannot index the volume are misses
func TestPositionsOutsideVolume(t *testing.T) {
	store, err := NewNpyStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNpyStore failed: %v", err)
	}
	key := models.PositionKey{Name: "N10x/air", Valid: models.AxialRange{Start: 0, End: 2}, Window: 5, Rows: 20, Cols: 20, Depth: 4}

	if err := store.SavePositions(key, []models.BeadPosition{{Row: 5, Col: 5}, {Row: 20, Col: 5}}); err != nil {
		t.Fatalf("SavePositions failed: %v", err)
	}
	if _, ok, err := store.LoadPositions(key); ok || err != nil {
		t.Errorf("Expected a miss for a position outside the volume, got ok=%v err=%v", ok, err)
	}
}

// TestVolume verifies upsampled volumes are cached by name and zoom
func TestVolume(t *testing.T) {
	store, err := NewNpyStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNpyStore failed: %v", err)
	}

	vol := models.NewVolume(3, 2, 2)
	for i := range vol.Data {
		vol.Data[i] = float64(i) * 0.5
	}
	zoom := [3]float64{4, 4, 1}
	if err := store.SaveVolume("N10x/edof", zoom, vol); err != nil {
		t.Fatalf("SaveVolume failed: %v", err)
	}

	got, ok, err := store.LoadVolume("N10x/edof", zoom)
	if err != nil || !ok {
		t.Fatalf("Expected a hit, got ok=%v err=%v", ok, err)
	}
	if got.Rows != 3 || got.Cols != 2 || got.Depth != 2 {
		t.Fatalf("Expected 3x2x2, got %dx%dx%d", got.Rows, got.Cols, got.Depth)
	}
	for i := range vol.Data {
		if got.Data[i] != vol.Data[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, vol.Data[i], got.Data[i])
		}
	}

	if _, ok, err := store.LoadVolume("N10x/edof", [3]float64{2, 2, 1}); ok || err != nil {
		t.Errorf("Expected a miss for another zoom, got ok=%v err=%v", ok, err)
	}
}

// TestFileKey verifies names map to safe file prefixes
func TestFileKey(t *testing.T) {
	if got := fileKey("O10x/air 2"); got != "O10x_air_2" {
		t.Errorf("Expected O10x_air_2, got %s", got)
	}
}
