// Package pipeline drives the PSF measurement of every configuration:
// center finding, a raw statistics pass, background estimation and the
// background-corrected measurement of each valid slice.
package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"empiricalpsf/internal/models"
	"empiricalpsf/pkg/background"
	"empiricalpsf/pkg/center"
	"empiricalpsf/pkg/fwhm"
)

// Params holds the pipeline parameters.
type Params struct {
	// NumCores is the number of configurations measured concurrently.
	NumCores int

	// SliceWorkers is the number of goroutines used by the center-finding
	// pre-pass of a single configuration.
	SliceWorkers int

	// CenterWindow is the number of slices averaged to find each bead center.
	CenterWindow int

	// CrossSectionHalfWidth is the half width of the cross-section band.
	CrossSectionHalfWidth int

	// Strategies chooses the background region of each configuration.
	// Nil means the fixed default region for every configuration.
	Strategies *background.Strategies

	// Store memoizes bead positions between runs. Nil disables it.
	Store Store

	// Logger receives stage and degenerate-slice messages.
	Logger zerolog.Logger
}

// DefaultParams returns the default pipeline parameters.
func DefaultParams() *Params {
	return &Params{
		NumCores:              runtime.NumCPU(),
		SliceWorkers:          1,
		CenterWindow:          center.DefaultWindow,
		CrossSectionHalfWidth: fwhm.DefaultHalfWidth,
		Logger:                zerolog.Nop(),
	}
}

// Store persists bead positions so the center-finding pre-pass can be skipped
// when a configuration is measured again.
type Store interface {
	// LoadPositions returns the positions cached under key and whether they
	// were found. Entries saved under a different key are misses.
	LoadPositions(key models.PositionKey) ([]models.BeadPosition, bool, error)
	SavePositions(key models.PositionKey, positions []models.BeadPosition) error
}

// ProgressCallback reports the number of slices measured so far for one
// configuration. Calls for different configurations may be concurrent.
type ProgressCallback func(name string, completed, total int)

// Pipeline measures configurations.
type Pipeline struct {
	params    *Params
	measurer  *fwhm.Measurer
	estimator *background.Estimator
	progress  ProgressCallback
}

// NewPipeline creates a pipeline with the provided parameters.
func NewPipeline(params *Params) *Pipeline {
	if params == nil {
		params = DefaultParams()
	}
	return &Pipeline{
		params:    params,
		measurer:  &fwhm.Measurer{HalfWidth: params.CrossSectionHalfWidth},
		estimator: background.NewEstimator(params.Strategies),
	}
}

// SetProgressCallback installs a progress callback.
func (p *Pipeline) SetProgressCallback(callback ProgressCallback) {
	p.progress = callback
}

// TotalSlices returns the number of slice measurements Process performs for
// configs, for sizing progress indicators.
func TotalSlices(configs []*models.Configuration) int {
	total := 0
	for _, cfg := range configs {
		total += 2 * cfg.Valid.Len()
	}
	return total
}

// Process measures every configuration, NumCores at a time.
//
// Configurations are independent: a failure aborts only the configuration
// that caused it. Reports are returned in input order with nil entries for
// failed configurations, together with the joined *models.ConfigError values.
func (p *Pipeline) Process(configs []*models.Configuration) ([]*models.Report, error) {
	type processingResult struct {
		index  int
		report *models.Report
		err    error
	}

	workers := max(p.params.NumCores, 1)
	jobs := make(chan int)
	resultChan := make(chan processingResult)

	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				report, err := p.ProcessConfiguration(configs[i])
				resultChan <- processingResult{index: i, report: report, err: err}
			}
		}()
	}
	go func() {
		for i := range configs {
			jobs <- i
		}
		close(jobs)
	}()

	reports := make([]*models.Report, len(configs))
	errs := make([]error, len(configs))
	for range configs {
		res := <-resultChan
		reports[res.index] = res.report
		errs[res.index] = res.err
	}

	return reports, errors.Join(errs...)
}

// ProcessConfiguration runs every stage for one configuration.
func (p *Pipeline) ProcessConfiguration(cfg *models.Configuration) (*models.Report, error) {
	log := p.params.Logger.With().Str("configuration", cfg.Name).Logger()
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wrap := func(stage string, err error) error {
		return &models.ConfigError{Name: cfg.Name, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	positions, err := p.beadPositions(cfg, log)
	if err != nil {
		return nil, wrap("failed to find bead centers", err)
	}

	total := 2 * cfg.Valid.Len()
	log.Debug().Int("slices", cfg.Valid.Len()).Msg("measuring raw slices")
	raw, err := p.measureRange(cfg, positions, 0, log, 0, total)
	if err != nil {
		return nil, wrap("failed to measure raw slices", err)
	}

	bg, err := p.estimator.Estimate(cfg, raw, positions)
	if err != nil {
		return nil, wrap("failed to estimate background", err)
	}
	log.Info().
		Float64("mean", bg.Mean).
		Float64("std", bg.Std).
		Int("slice", bg.Slice).
		Int("samples", bg.Samples).
		Msg("background estimated")

	table, err := p.measureRange(cfg, positions, bg.Mean, log, cfg.Valid.Len(), total)
	if err != nil {
		return nil, wrap("failed to measure corrected slices", err)
	}

	log.Info().
		Int("rows", len(table)).
		Dur("elapsed", time.Since(start)).
		Msg("configuration measured")

	return &models.Report{
		Config:     cfg,
		Positions:  positions,
		Background: bg,
		Raw:        raw,
		Table:      table,
	}, nil
}

func (p *Pipeline) beadPositions(cfg *models.Configuration, log zerolog.Logger) ([]models.BeadPosition, error) {
	key := models.NewPositionKey(cfg, p.params.CenterWindow)
	if p.params.Store != nil {
		positions, ok, err := p.params.Store.LoadPositions(key)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("ignoring unreadable cached bead positions")
		case ok && key.Fits(positions):
			log.Debug().Msg("loaded cached bead positions")
			return positions, nil
		case ok:
			log.Warn().Msg("ignoring cached bead positions that do not fit the volume")
		}
	}

	log.Debug().Int("window", p.params.CenterWindow).Msg("finding bead centers")
	positions, err := center.FindRange(cfg.Volume, cfg.Valid, p.params.CenterWindow, p.params.SliceWorkers)
	if err != nil {
		return nil, err
	}

	if p.params.Store != nil {
		if err := p.params.Store.SavePositions(key, positions); err != nil {
			log.Warn().Err(err).Msg("failed to cache bead positions")
		}
	}
	return positions, nil
}

// measureRange measures every valid slice after subtracting offset. Degenerate
// slices are kept as flagged rows.
func (p *Pipeline) measureRange(cfg *models.Configuration, positions []models.BeadPosition, offset float64,
	log zerolog.Logger, done, total int) ([]models.SliceMeasurement, error) {

	table := make([]models.SliceMeasurement, 0, cfg.Valid.Len())
	for i, z := 0, cfg.Valid.Start; z < cfg.Valid.End; i, z = i+1, z+1 {
		img, err := cfg.Volume.Slice(z)
		if err != nil {
			return nil, err
		}
		if offset != 0 {
			subtract(img, offset)
		}

		row, err := p.measurer.Measure(img, positions[i], cfg.VoxelSize)
		if err != nil && !fwhm.IsDegenerate(err) {
			return nil, fmt.Errorf("slice %d: %w", z, err)
		}
		if row.Degenerate {
			log.Warn().Int("z", z).Str("reason", row.Reason).Msg("degenerate slice")
		}
		row.Z = z
		row.ZPhysical = float64(z) * cfg.VoxelSize.Z
		table = append(table, row)

		if p.progress != nil {
			p.progress(cfg.Name, done+i+1, total)
		}
	}
	return table, nil
}

func subtract(img *mat.Dense, offset float64) {
	img.Apply(func(_, _ int, v float64) float64 {
		return v - offset
	}, img)
}
