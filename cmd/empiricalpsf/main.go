package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/rs/zerolog"

	"empiricalpsf/internal/logger"
	"empiricalpsf/internal/models"
	"empiricalpsf/pkg/cache"
	"empiricalpsf/pkg/config"
	"empiricalpsf/pkg/pipeline"
	"empiricalpsf/pkg/report"
	"empiricalpsf/pkg/upsample"
	"empiricalpsf/pkg/visualization"
	"empiricalpsf/pkg/volumeio"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	createConfig := flag.Bool("create-config", false, "Write the default configuration to -config and exit")
	inputDir := flag.String("input", ".", "Directory the configured volume paths are relative to")
	outputDir := flag.String("output", "", "Output directory (overrides output.dir)")
	numCores := flag.Int("cores", 0, "Number of configurations measured in parallel (overrides processing.numCores)")
	only := flag.String("only", "", "Comma-separated configuration names to measure, e.g. O4x/air,O20x/edof")
	noCache := flag.Bool("no-cache", false, "Disable the upsampling and bead position cache")
	noUpsample := flag.Bool("no-upsample", false, "Measure the volumes at their original sampling")
	sections := flag.Bool("sections", false, "Save x, y and z sections through each bead at best focus")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	jsonLogs := flag.Bool("json-logs", false, "Write logs as JSON lines")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *outputDir, *numCores, *noCache, *noUpsample, *sections, *verbose, *jsonLogs)
	if *only != "" {
		cfg.Configurations = selectDatasets(cfg.Configurations, strings.Split(*only, ","))
	}

	zerolog.DurationFieldInteger = true
	log := logger.NewConsole(logger.Options{Verbose: cfg.Output.Verbose, JSON: cfg.Output.JSONLogs})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	strategies, err := cfg.Strategies()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid background strategies")
	}

	var store *cache.NpyStore
	if cfg.Cache.Enabled {
		if store, err = cache.NewNpyStore(cfg.Cache.Dir); err != nil {
			log.Fatal().Err(err).Msg("failed to open cache")
		}
	}

	fmt.Println("================================")
	fmt.Println("EMPIRICAL PSF CHARACTERIZATION")
	fmt.Println("================================")

	startTime := time.Now()
	configs, loadErr := loadConfigurations(cfg, *inputDir, store, log)

	params := pipeline.DefaultParams()
	params.NumCores = cfg.Processing.NumCores
	params.SliceWorkers = cfg.Processing.SliceWorkers
	params.CenterWindow = cfg.Processing.CenterWindow
	params.CrossSectionHalfWidth = cfg.Processing.CrossSectionHalfWidth
	params.Strategies = strategies
	params.Logger = log
	if store != nil {
		params.Store = store
	}

	p := pipeline.NewPipeline(params)
	bar := pb.StartNew(pipeline.TotalSlices(configs))
	p.SetProgressCallback(func(string, int, int) {
		bar.Increment()
	})
	reports, procErr := p.Process(configs)
	bar.Finish()

	measured := make([]*models.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			measured = append(measured, r)
		}
	}
	outErr := writeOutputs(cfg, measured, log)

	fmt.Printf("\nMeasured %d of %d configurations in %.2f seconds\n\n",
		len(measured), len(cfg.Configurations), time.Since(startTime).Seconds())
	printSummary(measured)

	if err := errors.Join(loadErr, procErr, outErr); err != nil {
		log.Error().Err(err).Msg("completed with errors")
		os.Exit(1)
	}
}

// applyFlags lets command line flags override the configuration file.
func applyFlags(cfg *config.Config, outputDir string, numCores int, noCache, noUpsample, sections, verbose, jsonLogs bool) {
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if numCores > 0 {
		cfg.Processing.NumCores = numCores
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noUpsample {
		cfg.Processing.Upsample = false
	}
	if sections {
		cfg.Output.WriteSections = true
	}
	if verbose {
		cfg.Output.Verbose = true
	}
	if jsonLogs {
		cfg.Output.JSONLogs = true
	}
}

func selectDatasets(all []config.Dataset, names []string) []config.Dataset {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	var out []config.Dataset
	for _, d := range all {
		if want[d.Name()] {
			out = append(out, d)
		}
	}
	return out
}

// loadConfigurations reads and upsamples each dataset. Datasets that fail to
// load are skipped and reported in the returned error.
func loadConfigurations(cfg *config.Config, inputDir string, store *cache.NpyStore, log zerolog.Logger) ([]*models.Configuration, error) {
	var configs []*models.Configuration
	var errs []error

	for _, d := range cfg.Configurations {
		dlog := log.With().Str("configuration", d.Name()).Logger()
		vol, err := loadVolume(cfg, d, inputDir, store, dlog)
		if err != nil {
			errs = append(errs, &models.ConfigError{Name: d.Name(), Err: err})
			continue
		}

		c := d.Configuration(vol)
		if cfg.Processing.Upsample {
			c.VoxelSize = upsample.ZoomVoxel(c.VoxelSize, cfg.Processing.Zoom)
		}
		dlog.Debug().
			Int("rows", vol.Rows).Int("cols", vol.Cols).Int("depth", vol.Depth).
			Float64("pitch", c.VoxelSize.X).
			Msg("volume ready")
		configs = append(configs, c)
	}
	return configs, errors.Join(errs...)
}

func loadVolume(cfg *config.Config, d config.Dataset, inputDir string, store *cache.NpyStore, log zerolog.Logger) (*models.Volume, error) {
	if cfg.Processing.Upsample && store != nil {
		vol, ok, err := store.LoadVolume(d.Name(), cfg.Processing.Zoom)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring unreadable cached volume")
		} else if ok {
			log.Debug().Msg("loaded cached upsampled volume")
			return vol, nil
		}
	}

	path := d.Volume
	if !filepath.IsAbs(path) {
		path = filepath.Join(inputDir, path)
	}
	vol, err := volumeio.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load volume: %w", err)
	}
	if !cfg.Processing.Upsample {
		return vol, nil
	}

	log.Info().Floats64("zoom", cfg.Processing.Zoom[:]).Msg("upsampling volume")
	vol, err = upsample.Zoom(vol, cfg.Processing.Zoom, cfg.Processing.SliceWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to upsample volume: %w", err)
	}
	if store != nil {
		if err := store.SaveVolume(d.Name(), cfg.Processing.Zoom, vol); err != nil {
			log.Warn().Err(err).Msg("failed to cache upsampled volume")
		}
	}
	return vol, nil
}

func writeOutputs(cfg *config.Config, reports []*models.Report, log zerolog.Logger) error {
	var errs []error
	dir := cfg.Output.Dir

	if cfg.Output.WriteCSV {
		for _, r := range reports {
			path, err := report.SaveCSV(dir, r)
			if err != nil {
				errs = append(errs, &models.ConfigError{Name: r.Config.Name, Err: err})
				continue
			}
			log.Info().Str("configuration", r.Config.Name).Str("path", path).Msg("table saved")
		}
	}

	if cfg.Output.WritePlots && len(reports) > 0 {
		path := filepath.Join(dir, "psf_fwhm.png")
		if err := report.PlotFWHM(reports, path); err != nil {
			errs = append(errs, fmt.Errorf("failed to plot FWHM: %w", err))
		} else {
			log.Info().Str("path", path).Msg("plot saved")
		}
	}

	if cfg.Output.WriteSections {
		for _, r := range reports {
			prefix := r.Config.Objective + "_" + r.Config.Medium
			files, err := visualization.NewViewer(r.Config.Volume).
				SaveBeadSections(r, filepath.Join(dir, "sections"), prefix, cfg.Output.SectionHalfExtent)
			if err != nil {
				errs = append(errs, &models.ConfigError{Name: r.Config.Name, Err: err})
				continue
			}
			log.Debug().Str("configuration", r.Config.Name).Strs("files", files).Msg("sections saved")
		}
	}

	return errors.Join(errs...)
}

func printSummary(reports []*models.Report) {
	fmt.Printf("%-12s %10s %10s %8s %12s %12s\n", "CONFIG", "BG MEAN", "BG STD", "FOCUS", "FWHM CROSS", "FWHM RADIAL")
	fmt.Println("=======================================================================")
	for _, r := range reports {
		best, ok := r.BestFocus()
		if !ok {
			fmt.Printf("%-12s %10.3f %10.3f %8s %12s %12s\n", r.Config.Name, r.Background.Mean, r.Background.Std, "-", "-", "-")
			continue
		}
		fmt.Printf("%-12s %10.3f %10.3f %8d %12.3f %12.3f\n", r.Config.Name, r.Background.Mean, r.Background.Std,
			best.Z, best.FWHMCross, best.FWHMRadial)
	}
}
