package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the respiration
// pipeline. Every field is optional; the Get* accessors supply the
// default when a field is omitted, so partial files are safe.
type TuningConfig struct {
	// Feature selection params
	MaxPoints    *int     `json:"max_points,omitempty"`
	QualityLevel *float64 `json:"quality_level,omitempty"` // relative to strongest corner
	MinDistance  *float64 `json:"min_distance,omitempty"`  // pixels
	BlockSize    *int     `json:"block_size,omitempty"`

	// Seed frame contrast boost (applied before feature selection only)
	SeedContrastAlpha *float64 `json:"seed_contrast_alpha,omitempty"`
	SeedContrastBeta  *float64 `json:"seed_contrast_beta,omitempty"`

	// Optical flow params
	WindowSize      *int     `json:"window_size,omitempty"`
	PyramidLevels   *int     `json:"pyramid_levels,omitempty"`
	MaxIterations   *int     `json:"max_iterations,omitempty"`
	Epsilon         *float64 `json:"epsilon,omitempty"`
	MinEigThreshold *float64 `json:"min_eig_threshold,omitempty"`
	MaxError        *float64 `json:"max_error,omitempty"`

	// Signal and spectrum params
	HistoryCapacity *int     `json:"history_capacity,omitempty"`
	SampleRateHz    *float64 `json:"sample_rate_hz,omitempty"`
	BandLowHz       *float64 `json:"band_low_hz,omitempty"`
	BandHighHz      *float64 `json:"band_high_hz,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated from
// the built-in defaults. It mirrors config/tuning.defaults.json and is
// what the command falls back to when no file is given.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		MaxPoints:         ptrInt(c.GetMaxPoints()),
		QualityLevel:      ptrFloat64(c.GetQualityLevel()),
		MinDistance:       ptrFloat64(c.GetMinDistance()),
		BlockSize:         ptrInt(c.GetBlockSize()),
		SeedContrastAlpha: ptrFloat64(c.GetSeedContrastAlpha()),
		SeedContrastBeta:  ptrFloat64(c.GetSeedContrastBeta()),
		WindowSize:        ptrInt(c.GetWindowSize()),
		PyramidLevels:     ptrInt(c.GetPyramidLevels()),
		MaxIterations:     ptrInt(c.GetMaxIterations()),
		Epsilon:           ptrFloat64(c.GetEpsilon()),
		MinEigThreshold:   ptrFloat64(c.GetMinEigThreshold()),
		MaxError:          ptrFloat64(c.GetMaxError()),
		HistoryCapacity:   ptrInt(c.GetHistoryCapacity()),
		SampleRateHz:      ptrFloat64(c.GetSampleRateHz()),
		BandLowHz:         ptrFloat64(c.GetBandLowHz()),
		BandHighHz:        ptrFloat64(c.GetBandHighHz()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/respiration/<pkg>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxPoints != nil && *c.MaxPoints < 1 {
		return fmt.Errorf("max_points must be positive, got %d", *c.MaxPoints)
	}
	if c.QualityLevel != nil && (*c.QualityLevel <= 0 || *c.QualityLevel > 1) {
		return fmt.Errorf("quality_level must be in (0, 1], got %f", *c.QualityLevel)
	}
	if c.MinDistance != nil && *c.MinDistance < 0 {
		return fmt.Errorf("min_distance must be non-negative, got %f", *c.MinDistance)
	}
	if c.BlockSize != nil && *c.BlockSize < 1 {
		return fmt.Errorf("block_size must be positive, got %d", *c.BlockSize)
	}

	// Window sizes must be odd so the patch has a centre pixel.
	if c.WindowSize != nil && (*c.WindowSize < 3 || *c.WindowSize%2 == 0) {
		return fmt.Errorf("window_size must be an odd number >= 3, got %d", *c.WindowSize)
	}
	if c.PyramidLevels != nil && (*c.PyramidLevels < 0 || *c.PyramidLevels > 8) {
		return fmt.Errorf("pyramid_levels must be between 0 and 8, got %d", *c.PyramidLevels)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.Epsilon != nil && *c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %f", *c.Epsilon)
	}
	if c.MinEigThreshold != nil && *c.MinEigThreshold < 0 {
		return fmt.Errorf("min_eig_threshold must be non-negative, got %f", *c.MinEigThreshold)
	}
	if c.MaxError != nil && *c.MaxError <= 0 {
		return fmt.Errorf("max_error must be positive, got %f", *c.MaxError)
	}

	if c.HistoryCapacity != nil && *c.HistoryCapacity < 2 {
		return fmt.Errorf("history_capacity must be at least 2, got %d", *c.HistoryCapacity)
	}
	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %f", *c.SampleRateHz)
	}
	low, high := c.GetBandLowHz(), c.GetBandHighHz()
	if low < 0 || high <= low {
		return fmt.Errorf("band must satisfy 0 <= band_low_hz < band_high_hz, got %f..%f", low, high)
	}
	if high > c.GetSampleRateHz()/2 {
		return fmt.Errorf("band_high_hz %f exceeds Nyquist frequency %f", high, c.GetSampleRateHz()/2)
	}

	return nil
}

// GetMaxPoints returns the max_points value or the default.
func (c *TuningConfig) GetMaxPoints() int {
	if c.MaxPoints == nil {
		return 100
	}
	return *c.MaxPoints
}

// GetQualityLevel returns the quality_level value or the default.
func (c *TuningConfig) GetQualityLevel() float64 {
	if c.QualityLevel == nil {
		return 0.3
	}
	return *c.QualityLevel
}

// GetMinDistance returns the min_distance value or the default.
func (c *TuningConfig) GetMinDistance() float64 {
	if c.MinDistance == nil {
		return 7
	}
	return *c.MinDistance
}

// GetBlockSize returns the block_size value or the default.
func (c *TuningConfig) GetBlockSize() int {
	if c.BlockSize == nil {
		return 7
	}
	return *c.BlockSize
}

// GetSeedContrastAlpha returns the seed_contrast_alpha value or the default.
func (c *TuningConfig) GetSeedContrastAlpha() float64 {
	if c.SeedContrastAlpha == nil {
		return 1.5
	}
	return *c.SeedContrastAlpha
}

// GetSeedContrastBeta returns the seed_contrast_beta value or the default.
func (c *TuningConfig) GetSeedContrastBeta() float64 {
	if c.SeedContrastBeta == nil {
		return 60
	}
	return *c.SeedContrastBeta
}

// GetWindowSize returns the window_size value or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 15
	}
	return *c.WindowSize
}

// GetPyramidLevels returns the pyramid_levels value or the default.
func (c *TuningConfig) GetPyramidLevels() int {
	if c.PyramidLevels == nil {
		return 2
	}
	return *c.PyramidLevels
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 10
	}
	return *c.MaxIterations
}

// GetEpsilon returns the epsilon value or the default.
func (c *TuningConfig) GetEpsilon() float64 {
	if c.Epsilon == nil {
		return 0.03
	}
	return *c.Epsilon
}

// GetMinEigThreshold returns the min_eig_threshold value or the default.
func (c *TuningConfig) GetMinEigThreshold() float64 {
	if c.MinEigThreshold == nil {
		return 1e-4
	}
	return *c.MinEigThreshold
}

// GetMaxError returns the max_error value or the default.
func (c *TuningConfig) GetMaxError() float64 {
	if c.MaxError == nil {
		return 30
	}
	return *c.MaxError
}

// GetHistoryCapacity returns the history_capacity value or the default
// (10 seconds at 30 fps).
func (c *TuningConfig) GetHistoryCapacity() int {
	if c.HistoryCapacity == nil {
		return 300
	}
	return *c.HistoryCapacity
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *TuningConfig) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return 30
	}
	return *c.SampleRateHz
}

// GetBandLowHz returns the band_low_hz value or the default (6 rpm).
func (c *TuningConfig) GetBandLowHz() float64 {
	if c.BandLowHz == nil {
		return 0.1
	}
	return *c.BandLowHz
}

// GetBandHighHz returns the band_high_hz value or the default (60 rpm).
func (c *TuningConfig) GetBandHighHz() float64 {
	if c.BandHighHz == nil {
		return 1.0
	}
	return *c.BandHighHz
}
