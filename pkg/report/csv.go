// Package report exports measurement tables and plots.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"empiricalpsf/internal/models"
)

// Columns is the CSV header, one column per SliceMeasurement field.
var Columns = []string{
	"z_ndx", "z_um", "center_row", "center_col",
	"fwhm_cross_sect_x", "fwhm_cross_sect_y", "fwhm_cross_sect", "fwhm_radial", "radial_max",
	"peak_energy", "total_energy", "fwhm_energy",
	"cross_total_energy", "cross_fwhm_energy",
	"degenerate", "reason",
}

// FileName returns psfdata_<objective>_<medium>.csv for a configuration.
func FileName(cfg *models.Configuration) string {
	return fmt.Sprintf("psfdata_%s_%s.csv", cfg.Objective, cfg.Medium)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes the corrected table of a report.
func WriteCSV(w io.Writer, report *models.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}

	for _, m := range report.Table {
		record := []string{
			strconv.Itoa(m.Z), formatFloat(m.ZPhysical),
			strconv.Itoa(m.Center.Row), strconv.Itoa(m.Center.Col),
			formatFloat(m.FWHMCrossX), formatFloat(m.FWHMCrossY), formatFloat(m.FWHMCross),
			formatFloat(m.FWHMRadial), formatFloat(m.RadialMax),
			formatFloat(m.PeakEnergy), formatFloat(m.TotalEnergy), formatFloat(m.FWHMEnergy),
			formatFloat(m.CrossTotalEnergy), formatFloat(m.CrossFWHMEnergy),
			strconv.FormatBool(m.Degenerate), m.Reason,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes a report to FileName(cfg) under dir and returns the path.
func SaveCSV(dir string, report *models.Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(report.Config))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(file, report); err != nil {
		file.Close()
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return path, file.Close()
}
