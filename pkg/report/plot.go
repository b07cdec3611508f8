package report

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"empiricalpsf/internal/models"
)

// fwhmPoints returns the finite (z_um, value) pairs of a table column.
func fwhmPoints(table []models.SliceMeasurement, value func(models.SliceMeasurement) float64) plotter.XYs {
	var pts plotter.XYs
	for _, m := range table {
		v := value(m)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: m.ZPhysical, Y: v})
	}
	return pts
}

// PlotFWHM draws cross-sectional (solid) and radial (dashed) FWHM against
// axial position for every report and saves the figure to path. The image
// format follows the file extension.
func PlotFWHM(reports []*models.Report, path string) error {
	p := plot.New()
	p.Title.Text = "Empirical PSF FWHM"
	p.X.Label.Text = "z (µm)"
	p.Y.Label.Text = "FWHM (µm)"
	p.Add(plotter.NewGrid())

	drawn := 0
	for i, r := range reports {
		if r == nil {
			continue
		}

		cross := fwhmPoints(r.Table, func(m models.SliceMeasurement) float64 { return m.FWHMCross })
		radial := fwhmPoints(r.Table, func(m models.SliceMeasurement) float64 { return m.FWHMRadial })

		if len(cross) > 0 {
			line, err := plotter.NewLine(cross)
			if err != nil {
				return fmt.Errorf("%s: %w", r.Config.Name, err)
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(r.Config.Name+" cross", line)
			drawn++
		}
		if len(radial) > 0 {
			line, err := plotter.NewLine(radial)
			if err != nil {
				return fmt.Errorf("%s: %w", r.Config.Name, err)
			}
			line.Color = plotutil.Color(i)
			line.Dashes = plotutil.Dashes(1)
			p.Add(line)
			p.Legend.Add(r.Config.Name+" radial", line)
			drawn++
		}
	}
	if drawn == 0 {
		return fmt.Errorf("no finite FWHM values to plot: %w", models.ErrDegenerate)
	}

	p.Legend.Top = true
	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}
