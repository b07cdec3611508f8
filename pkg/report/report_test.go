package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"empiricalpsf/internal/models"
)

func sampleReport() *models.Report {
	cfg := &models.Configuration{Name: "O4x/air", Objective: "O4x", Medium: "air"}
	return &models.Report{
		Config: cfg,
		Table: []models.SliceMeasurement{
			{Z: 60, ZPhysical: 60, Center: models.BeadPosition{Row: 100, Col: 101},
				FWHMCrossX: 1.5, FWHMCrossY: 2.5, FWHMCross: 2, FWHMRadial: 2.25, RadialMax: 900,
				PeakEnergy: 0.125, TotalEnergy: 8000, FWHMEnergy: 0.5, CrossTotalEnergy: 300, CrossFWHMEnergy: 0.75},
			{Z: 61, ZPhysical: 61, Center: models.BeadPosition{Row: 100, Col: 101},
				FWHMCrossX: math.NaN(), FWHMCrossY: 2, FWHMCross: math.NaN(), FWHMRadial: 3, RadialMax: 10,
				Degenerate: true, Reason: "x: degenerate profile"},
		},
	}
}

// TestFileName verifies the per-configuration file name
func TestFileName(t *testing.T) {
	cfg := &models.Configuration{Objective: "N10x", Medium: "edof"}
	if got := FileName(cfg); got != "psfdata_N10x_edof.csv" {
		t.Errorf("Expected psfdata_N10x_edof.csv, got %s", got)
	}
}

// TestWriteCSV verifies the header and the formatting of rows
func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read back CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d records", len(records))
	}
	if len(records[0]) != len(Columns) || records[0][0] != "z_ndx" {
		t.Errorf("Unexpected header %v", records[0])
	}

	first := records[1]
	tests := map[int]string{0: "60", 2: "100", 4: "1.5", 6: "2", 9: "0.125", 14: "false"}
	for col, want := range tests {
		if first[col] != want {
			t.Errorf("Column %s: expected %s, got %s", Columns[col], want, first[col])
		}
	}

	second := records[2]
	if second[4] != "NaN" || second[14] != "true" || second[15] != "x: degenerate profile" {
		t.Errorf("Unexpected degenerate row %v", second)
	}
}

// TestSaveCSV verifies the file lands under the output directory
func TestSaveCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := SaveCSV(dir, sampleReport())
	if err != nil {
		t.Fatalf("SaveCSV failed: %v", err)
	}
	if path != filepath.Join(dir, "psfdata_O4x_air.csv") {
		t.Errorf("Unexpected path %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected file to exist: %v", err)
	}
}

// TestPlotFWHM verifies a PNG is written and NaN rows are skipped
func TestPlotFWHM(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping plot rendering in short mode")
	}

	path := filepath.Join(t.TempDir(), "fwhm.png")
	if err := PlotFWHM([]*models.Report{sampleReport(), nil}, path); err != nil {
		t.Fatalf("PlotFWHM failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("Expected a non-empty plot, got err=%v", err)
	}

	if pts := fwhmPoints(sampleReport().Table, func(m models.SliceMeasurement) float64 { return m.FWHMCross }); len(pts) != 1 {
		t.Errorf("Expected 1 finite point, got %d", len(pts))
	}

	empty := &models.Report{Config: &models.Configuration{Name: "empty"}}
	err = PlotFWHM([]*models.Report{empty}, filepath.Join(t.TempDir(), "empty.png"))
	if !errors.Is(err, models.ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate for an empty plot, got %v", err)
	}
}
