// Package config provides configuration loading and management for empiricalpsf.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"empiricalpsf/internal/models"
	"empiricalpsf/pkg/background"
)

// Dataset describes one objective/medium bead volume.
type Dataset struct {
	Objective string `yaml:"objective"`
	Medium    string `yaml:"medium"`

	// Volume is a multi-page TIFF, a directory of z-slice images or a .npy file
	Volume string `yaml:"volume"`

	// VoxelSize is the (x, y, z) sampling pitch in micrometers before upsampling
	VoxelSize [3]float64 `yaml:"voxelSize"`

	// ValidRange is the half-open [start, end) range of measured slices
	ValidRange [2]int `yaml:"validRange"`

	// CleanRange bounds the background slice search, exclusive at both ends
	CleanRange [2]int `yaml:"cleanRange"`

	// Background names the region strategy; empty uses background.default
	Background string `yaml:"background,omitempty"`
}

// Name returns "<objective>/<medium>".
func (d Dataset) Name() string {
	return d.Objective + "/" + d.Medium
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many configurations are measured in parallel
		NumCores int `yaml:"numCores"`

		// SliceWorkers is the number of goroutines used within one configuration
		SliceWorkers int `yaml:"sliceWorkers"`

		// CenterWindow is the number of slices averaged when locating the bead
		CenterWindow int `yaml:"centerWindow"`

		// CrossSectionHalfWidth is the half width of the cross-section band in pixels
		CrossSectionHalfWidth int `yaml:"crossSectionHalfWidth"`

		// Upsample enables cubic resampling of each volume by Zoom
		Upsample bool `yaml:"upsample"`

		// Zoom is the (row, col, z) upsampling factor
		Zoom [3]float64 `yaml:"zoom"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		Dir           string `yaml:"dir"`
		WriteCSV      bool   `yaml:"writeCSV"`
		WritePlots    bool   `yaml:"writePlots"`
		WriteSections bool   `yaml:"writeSections"`

		// SectionHalfExtent crops sections to this many pixels around the bead; 0 keeps the full slice
		SectionHalfExtent int `yaml:"sectionHalfExtent"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// JSONLogs switches the console writer for JSON lines
		JSONLogs bool `yaml:"jsonLogs"`
	} `yaml:"output"`

	// Cache parameters
	Cache struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"cache"`

	// Background region parameters
	Background struct {
		Default string `yaml:"default"`

		Fixed struct {
			Top               int     `yaml:"top"`
			BottomFraction    float64 `yaml:"bottomFraction"`
			HalfWidthFraction float64 `yaml:"halfWidthFraction"`
		} `yaml:"fixed"`

		BeadCentered struct {
			HalfExtentFraction float64 `yaml:"halfExtentFraction"`
			MaskFraction       float64 `yaml:"maskFraction"`
		} `yaml:"beadCentered"`
	} `yaml:"background"`

	Configurations []Dataset `yaml:"configurations"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SliceWorkers = 1
	cfg.Processing.CenterWindow = 50
	cfg.Processing.CrossSectionHalfWidth = 1
	cfg.Processing.Upsample = true
	cfg.Processing.Zoom = [3]float64{4, 4, 1}

	cfg.Output.Dir = "."
	cfg.Output.WriteCSV = true
	cfg.Output.WritePlots = true
	cfg.Output.WriteSections = false
	cfg.Output.SectionHalfExtent = 128
	cfg.Output.Verbose = false

	cfg.Cache.Enabled = true
	cfg.Cache.Dir = ".psfcache"

	cfg.Background.Default = background.StrategyFixed
	cfg.Background.Fixed.Top = 20
	cfg.Background.Fixed.BottomFraction = 1.0 / 8
	cfg.Background.Fixed.HalfWidthFraction = 1.0 / 8
	cfg.Background.BeadCentered.HalfExtentFraction = 1.0 / 4
	cfg.Background.BeadCentered.MaskFraction = 1.0 / 4

	// Each volume is a multi-page TIFF of the averaged bead, one page per z-slice
	cfg.Configurations = []Dataset{
		{Objective: "O4x", Medium: "air", Volume: "Air_O4x_AvgOf5imagesLo25_Hi100b_rev.Resampled.tif",
			VoxelSize: [3]float64{0.365, 0.365, 1}, ValidRange: [2]int{50, 200}, CleanRange: [2]int{60, 150}},
		{Objective: "O4x", Medium: "edof", Volume: "PSF_O4x_AvgBeadV2_AvgOf10imagesLo40_Hi100b65k_Cent_114Rev_146m1.tif",
			VoxelSize: [3]float64{1.46, 1.46, 1}, ValidRange: [2]int{50, 800}, CleanRange: [2]int{40, 790}},
		{Objective: "N10x", Medium: "air", Volume: "Air_N10x_AvgOf5imagesLo25_Hi100b_rev.Resampled.tif",
			VoxelSize: [3]float64{0.365, 0.365, 1}, ValidRange: [2]int{113, 200}, CleanRange: [2]int{120, 160}},
		{Objective: "N10x", Medium: "edof", Volume: "PSF_N10x_1umBeadsX8avg_25min100max_AffAln_065xy_1z_rev.tif",
			VoxelSize: [3]float64{0.65, 0.65, 1}, ValidRange: [2]int{50, 535}, CleanRange: [2]int{50, 500}},
		{Objective: "O10x", Medium: "air", Volume: "Air_O10X_AvgOf5imagesLo25_Hi100b_rev.Resampled.tif",
			VoxelSize: [3]float64{0.365, 0.365, 1}, ValidRange: [2]int{110, 170}, CleanRange: [2]int{120, 155},
			Background: background.StrategyBeadCentered},
		{Objective: "O10x", Medium: "edof", Volume: "PSF_O10x_1umBeadsX5avg_25min100max_Aff2Aln_0585xy1z_rev.tif",
			VoxelSize: [3]float64{0.585, 0.585, 1}, ValidRange: [2]int{10, 483}, CleanRange: [2]int{10, 450}},
		{Objective: "O20x", Medium: "air", Volume: "Air_O20x_AvgOf5imagesLo25_Hi100b_rev.Resampled.tif",
			VoxelSize: [3]float64{0.365, 0.365, 1}, ValidRange: [2]int{100, 170}, CleanRange: [2]int{140, 165}},
		{Objective: "O20x", Medium: "edof", Volume: "PSF_O20x_1umBeadsX5avg_25min100max_AffAln_02925xy1z_rev.tif",
			VoxelSize: [3]float64{0.2925, 0.2925, 1}, ValidRange: [2]int{10, 409}, CleanRange: [2]int{25, 400}},
	}

	return cfg
}

// LoadConfig reads configPath over the defaults. Keys missing from the file
// keep their default values; a missing file yields DefaultConfig.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML with two-space indentation, creating the
// parent directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	enc := yaml.NewEncoder(file)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		file.Close()
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("error encoding config: %w", err)
	}
	return file.Close()
}

// CreateDefaultConfigFile writes DefaultConfig to configPath. An existing file
// is left untouched and reported as an error.
func CreateDefaultConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file %s already exists", configPath)
	}
	return SaveConfig(DefaultConfig(), configPath)
}

// Registry returns the background selectors named by the configuration.
func (c *Config) Registry() background.Registry {
	b := c.Background
	return background.Registry{
		background.StrategyFixed: background.FixedRegion(b.Fixed.Top,
			b.Fixed.BottomFraction, b.Fixed.HalfWidthFraction),
		background.StrategyBeadCentered: background.BeadCenteredRegion(
			b.BeadCentered.HalfExtentFraction, b.BeadCentered.MaskFraction),
	}
}

// Strategies builds the per-configuration background strategies.
func (c *Config) Strategies() (*background.Strategies, error) {
	reg := c.Registry()
	def, err := reg.Lookup(c.Background.Default)
	if err != nil {
		return nil, err
	}

	s := &background.Strategies{Default: def}
	for _, d := range c.Configurations {
		if d.Background == "" {
			continue
		}
		sel, err := reg.Lookup(d.Background)
		if err != nil {
			return nil, &models.ConfigError{Name: d.Name(), Err: err}
		}
		s.Set(d.Name(), sel)
	}
	return s, nil
}

// Validate checks the configuration file for values the pipeline cannot use.
// Range checks against the volume depth happen once the volume is loaded.
func (c *Config) Validate() error {
	var errs []error
	if c.Processing.CenterWindow < 1 {
		errs = append(errs, fmt.Errorf("processing.centerWindow must be positive, got %d", c.Processing.CenterWindow))
	}
	if c.Output.SectionHalfExtent < 0 {
		errs = append(errs, fmt.Errorf("output.sectionHalfExtent must be non-negative, got %d", c.Output.SectionHalfExtent))
	}
	if c.Processing.CrossSectionHalfWidth < 0 {
		errs = append(errs, fmt.Errorf("processing.crossSectionHalfWidth must be non-negative, got %d",
			c.Processing.CrossSectionHalfWidth))
	}
	if c.Processing.Upsample {
		for i, f := range c.Processing.Zoom {
			if f <= 0 {
				errs = append(errs, fmt.Errorf("processing.zoom[%d] must be positive, got %g", i, f))
			}
		}
		// valid and clean ranges are slice indices of the acquired stack
		if c.Processing.Zoom[2] != 1 {
			errs = append(errs, fmt.Errorf("processing.zoom[2] must be 1, got %g", c.Processing.Zoom[2]))
		}
	}
	if _, err := c.Strategies(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for _, d := range c.Configurations {
		name := d.Name()
		if seen[name] {
			errs = append(errs, &models.ConfigError{Name: name, Err: errors.New("duplicate configuration")})
		}
		seen[name] = true

		voxel := models.VoxelSize{X: d.VoxelSize[0], Y: d.VoxelSize[1], Z: d.VoxelSize[2]}
		if _, err := voxel.Lateral(); err != nil {
			errs = append(errs, &models.ConfigError{Name: name, Err: err})
		}
		if d.ValidRange[1] <= d.ValidRange[0] || d.ValidRange[0] < 0 {
			errs = append(errs, &models.ConfigError{Name: name, Err: fmt.Errorf("%w: empty valid range %v",
				models.ErrConfigurationMismatch, d.ValidRange)})
		}
		if d.CleanRange[1] <= d.CleanRange[0] {
			errs = append(errs, &models.ConfigError{Name: name, Err: fmt.Errorf("%w: empty clean range %v",
				models.ErrConfigurationMismatch, d.CleanRange)})
		}
	}
	return errors.Join(errs...)
}

// Configuration builds the measurement configuration of a dataset around a
// loaded volume. The voxel size is the dataset's pitch before upsampling.
func (d Dataset) Configuration(vol *models.Volume) *models.Configuration {
	return &models.Configuration{
		Name:      d.Name(),
		Objective: d.Objective,
		Medium:    d.Medium,
		Volume:    vol,
		VoxelSize: models.VoxelSize{X: d.VoxelSize[0], Y: d.VoxelSize[1], Z: d.VoxelSize[2]},
		Valid:     models.AxialRange{Start: d.ValidRange[0], End: d.ValidRange[1]},
		Clean:     models.AxialRange{Start: d.CleanRange[0], End: d.CleanRange[1]},
	}
}
