package models

// BackgroundStats is the background level of a configuration.
type BackgroundStats struct {
	Mean float64
	Std  float64

	// Slice is the axial index the region was taken from.
	Slice int

	// Samples is the number of pixels that contributed.
	Samples int
}

// SliceMeasurement holds the FWHM and energy statistics of one slice.
type SliceMeasurement struct {
	Z         int
	ZPhysical float64

	Center BeadPosition

	FWHMCrossX float64
	FWHMCrossY float64
	FWHMCross  float64
	FWHMRadial float64
	RadialMax  float64

	PeakEnergy  float64
	TotalEnergy float64
	FWHMEnergy  float64

	CrossTotalEnergy float64
	CrossFWHMEnergy  float64

	// Degenerate marks a row where a profile had no usable half-max
	// crossing; Reason says which.
	Degenerate bool
	Reason     string
}

// Report is the outcome of measuring one configuration.
type Report struct {
	Config     *Configuration
	Positions  []BeadPosition
	Background BackgroundStats

	// Raw is the table measured before background subtraction.
	Raw []SliceMeasurement

	// Table is the background-corrected table in increasing axial order.
	Table []SliceMeasurement
}

// Position returns the bead position recorded for axial index z.
func (r *Report) Position(z int) (BeadPosition, bool) {
	i := z - r.Config.Valid.Start
	if i < 0 || i >= len(r.Positions) {
		return BeadPosition{}, false
	}
	return r.Positions[i], true
}

// BestFocus returns the row with the largest peak energy in Table.
func (r *Report) BestFocus() (SliceMeasurement, bool) {
	best := -1
	for i, m := range r.Table {
		if m.Degenerate {
			continue
		}
		if best < 0 || m.PeakEnergy > r.Table[best].PeakEnergy {
			best = i
		}
	}
	if best < 0 {
		return SliceMeasurement{}, false
	}
	return r.Table[best], true
}
