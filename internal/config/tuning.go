package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/qc.defaults.json"

// Operating modes recognized by the "mode" key.
const (
	ModeBaseline = "baseline"
	ModePedestal = "pedestal"
	ModeLED      = "led"
)

// Bad-channel map sources recognized by the "bad_channel_source" key.
const (
	BadChannelNone = "none"
	BadChannelHTTP = "http"
	BadChannelDB   = "db"
)

// TuningConfig represents the root configuration for the quality monitor.
// All fields are optional pointers so a partial JSON file only overrides
// what it names; the Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Engine params
	Mode                *string  `json:"mode,omitempty"` // baseline | pedestal | led
	EnableQualityMetric *bool    `json:"enable_quality_metric,omitempty"`
	OccupancyThreshold  *float64 `json:"occupancy_threshold,omitempty"`
	LowGainScale        *float64 `json:"low_gain_scale,omitempty"`
	CycleInterval       *string  `json:"cycle_interval,omitempty"` // duration string like "60s"

	// Peak search params (LED mode)
	PeakMaxCandidates *int     `json:"peak_max_candidates,omitempty"`
	PeakSigma         *float64 `json:"peak_sigma,omitempty"`
	PeakMinRelHeight  *float64 `json:"peak_min_rel_height,omitempty"`

	// Ingest params
	UDPPort        *int    `json:"udp_port,omitempty"`
	BatchQueueSize *int    `json:"batch_queue_size,omitempty"`
	StatsInterval  *string `json:"stats_interval,omitempty"` // duration string like "10s"

	// Monitor params
	HTTPPort *int    `json:"http_port,omitempty"`
	PlotDir  *string `json:"plot_dir,omitempty"` // empty disables per-cycle PNG plots

	// Archive params
	DBPath        *string `json:"db_path,omitempty"`
	ArchiveCycles *bool   `json:"archive_cycles,omitempty"`

	// Bad-channel map params
	BadChannelSource *string `json:"bad_channel_source,omitempty"` // none | http | db
	BadChannelURL    *string `json:"bad_channel_url,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/calo/*
		"../../../../" + DefaultConfigPath,
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
	if c.Mode != nil {
		switch *c.Mode {
		case ModeBaseline, ModePedestal, ModeLED:
		default:
			return fmt.Errorf("mode must be one of %q, %q, %q, got %q",
				ModeBaseline, ModePedestal, ModeLED, *c.Mode)
		}
	}

	if c.OccupancyThreshold != nil && *c.OccupancyThreshold < 0 {
		return fmt.Errorf("occupancy_threshold must be non-negative, got %f", *c.OccupancyThreshold)
	}

	if c.LowGainScale != nil && *c.LowGainScale <= 0 {
		return fmt.Errorf("low_gain_scale must be positive, got %f", *c.LowGainScale)
	}

	if c.CycleInterval != nil && *c.CycleInterval != "" {
		if _, err := time.ParseDuration(*c.CycleInterval); err != nil {
			return fmt.Errorf("invalid cycle_interval '%s': %w", *c.CycleInterval, err)
		}
	}

	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	if c.PeakMaxCandidates != nil && *c.PeakMaxCandidates < 1 {
		return fmt.Errorf("peak_max_candidates must be at least 1, got %d", *c.PeakMaxCandidates)
	}

	if c.PeakMinRelHeight != nil {
		if *c.PeakMinRelHeight <= 0 || *c.PeakMinRelHeight >= 1 {
			return fmt.Errorf("peak_min_rel_height must be between 0 and 1 exclusive, got %f", *c.PeakMinRelHeight)
		}
	}

	if c.UDPPort != nil && (*c.UDPPort < 1 || *c.UDPPort > 65535) {
		return fmt.Errorf("udp_port out of range: %d", *c.UDPPort)
	}

	if c.HTTPPort != nil && (*c.HTTPPort < 1 || *c.HTTPPort > 65535) {
		return fmt.Errorf("http_port out of range: %d", *c.HTTPPort)
	}

	if c.BatchQueueSize != nil && *c.BatchQueueSize < 1 {
		return fmt.Errorf("batch_queue_size must be at least 1, got %d", *c.BatchQueueSize)
	}

	if c.BadChannelSource != nil {
		switch *c.BadChannelSource {
		case BadChannelNone, BadChannelHTTP, BadChannelDB:
		default:
			return fmt.Errorf("bad_channel_source must be one of %q, %q, %q, got %q",
				BadChannelNone, BadChannelHTTP, BadChannelDB, *c.BadChannelSource)
		}
		if *c.BadChannelSource == BadChannelHTTP {
			if c.BadChannelURL == nil || *c.BadChannelURL == "" {
				return fmt.Errorf("bad_channel_source %q requires bad_channel_url", BadChannelHTTP)
			}
		}
	}

	return nil
}

// GetMode returns the operating mode or the default.
func (c *TuningConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return ModeBaseline // default
	}
	return *c.Mode
}

// GetEnableQualityMetric returns the enable_quality_metric value or the default.
func (c *TuningConfig) GetEnableQualityMetric() bool {
	if c.EnableQualityMetric == nil {
		return false // default: fit-quality stream disabled
	}
	return *c.EnableQualityMetric
}

// GetOccupancyThreshold returns the occupancy_threshold value or the default.
func (c *TuningConfig) GetOccupancyThreshold() float64 {
	if c.OccupancyThreshold == nil {
		return 10.0
	}
	return *c.OccupancyThreshold
}

// GetLowGainScale returns the low_gain_scale value or the default.
func (c *TuningConfig) GetLowGainScale() float64 {
	if c.LowGainScale == nil {
		return 16.0
	}
	return *c.LowGainScale
}

// GetCycleInterval parses and returns the CycleInterval as a time.Duration.
func (c *TuningConfig) GetCycleInterval() time.Duration {
	if c.CycleInterval == nil || *c.CycleInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CycleInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetPeakMaxCandidates returns the peak_max_candidates value or the default.
func (c *TuningConfig) GetPeakMaxCandidates() int {
	if c.PeakMaxCandidates == nil {
		return 20
	}
	return *c.PeakMaxCandidates
}

// GetPeakSigma returns the peak_sigma value or the default.
func (c *TuningConfig) GetPeakSigma() float64 {
	if c.PeakSigma == nil {
		return 2.0
	}
	return *c.PeakSigma
}

// GetPeakMinRelHeight returns the peak_min_rel_height value or the default.
func (c *TuningConfig) GetPeakMinRelHeight() float64 {
	if c.PeakMinRelHeight == nil {
		return 0.1
	}
	return *c.PeakMinRelHeight
}

// GetUDPPort returns the udp_port value or the default.
func (c *TuningConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return 3563
	}
	return *c.UDPPort
}

// GetBatchQueueSize returns the batch_queue_size value or the default.
func (c *TuningConfig) GetBatchQueueSize() int {
	if c.BatchQueueSize == nil {
		return 256
	}
	return *c.BatchQueueSize
}

// GetHTTPPort returns the http_port value or the default.
func (c *TuningConfig) GetHTTPPort() int {
	if c.HTTPPort == nil {
		return 8089
	}
	return *c.HTTPPort
}

// GetPlotDir returns the plot_dir value or the default.
func (c *TuningConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return "" // default: PNG plotting disabled
	}
	return *c.PlotDir
}

// GetDBPath returns the db_path value or the default.
func (c *TuningConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "qcmon.db"
	}
	return *c.DBPath
}

// GetArchiveCycles returns the archive_cycles value or the default.
func (c *TuningConfig) GetArchiveCycles() bool {
	if c.ArchiveCycles == nil {
		return true // default: archive finalized cycles
	}
	return *c.ArchiveCycles
}

// GetBadChannelSource returns the bad_channel_source value or the default.
func (c *TuningConfig) GetBadChannelSource() string {
	if c.BadChannelSource == nil || *c.BadChannelSource == "" {
		return BadChannelNone
	}
	return *c.BadChannelSource
}

// GetBadChannelURL returns the bad_channel_url value or the default.
func (c *TuningConfig) GetBadChannelURL() string {
	if c.BadChannelURL == nil {
		return ""
	}
	return *c.BadChannelURL
}
