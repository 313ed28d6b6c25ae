package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetMode() != ModeBaseline {
		t.Errorf("GetMode() = %q, want %q", cfg.GetMode(), ModeBaseline)
	}
	if cfg.GetEnableQualityMetric() != false {
		t.Error("GetEnableQualityMetric() should default to false")
	}
	if cfg.GetOccupancyThreshold() != 10.0 {
		t.Errorf("GetOccupancyThreshold() = %f, want 10.0", cfg.GetOccupancyThreshold())
	}
	if cfg.GetLowGainScale() != 16.0 {
		t.Errorf("GetLowGainScale() = %f, want 16.0", cfg.GetLowGainScale())
	}
	if cfg.GetCycleInterval() != 60*time.Second {
		t.Errorf("GetCycleInterval() = %v, want 60s", cfg.GetCycleInterval())
	}
	if cfg.GetPeakMaxCandidates() != 20 {
		t.Errorf("GetPeakMaxCandidates() = %d, want 20", cfg.GetPeakMaxCandidates())
	}
	if cfg.GetPeakSigma() != 2.0 {
		t.Errorf("GetPeakSigma() = %f, want 2.0", cfg.GetPeakSigma())
	}
	if cfg.GetPeakMinRelHeight() != 0.1 {
		t.Errorf("GetPeakMinRelHeight() = %f, want 0.1", cfg.GetPeakMinRelHeight())
	}
	if cfg.GetBadChannelSource() != BadChannelNone {
		t.Errorf("GetBadChannelSource() = %q, want %q", cfg.GetBadChannelSource(), BadChannelNone)
	}
	if !cfg.GetArchiveCycles() {
		t.Error("GetArchiveCycles() should default to true")
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "mode": "pedestal",
  "enable_quality_metric": true,
  "occupancy_threshold": 5.0,
  "cycle_interval": "30s",
  "udp_port": 4000
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetMode() != ModePedestal {
		t.Errorf("GetMode() = %q, want %q", cfg.GetMode(), ModePedestal)
	}
	if !cfg.GetEnableQualityMetric() {
		t.Error("enable_quality_metric should be true")
	}
	if cfg.GetOccupancyThreshold() != 5.0 {
		t.Errorf("GetOccupancyThreshold() = %f, want 5.0", cfg.GetOccupancyThreshold())
	}
	if cfg.GetCycleInterval() != 30*time.Second {
		t.Errorf("GetCycleInterval() = %v, want 30s", cfg.GetCycleInterval())
	}
	if cfg.GetUDPPort() != 4000 {
		t.Errorf("GetUDPPort() = %d, want 4000", cfg.GetUDPPort())
	}

	// Fields absent from the file keep their defaults.
	if cfg.GetLowGainScale() != 16.0 {
		t.Errorf("GetLowGainScale() = %f, want default 16.0", cfg.GetLowGainScale())
	}
	if cfg.GetHTTPPort() != 8089 {
		t.Errorf("GetHTTPPort() = %d, want default 8089", cfg.GetHTTPPort())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigBadExtension(t *testing.T) {
	_, err := LoadTuningConfig("/tmp/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "mode": 12
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{"empty is valid", EmptyTuningConfig(), false},
		{"valid mode", &TuningConfig{Mode: ptrString("led")}, false},
		{"unknown mode", &TuningConfig{Mode: ptrString("cosmic")}, true},
		{"negative threshold", &TuningConfig{OccupancyThreshold: ptrFloat64(-1)}, true},
		{"zero gain scale", &TuningConfig{LowGainScale: ptrFloat64(0)}, true},
		{"bad cycle interval", &TuningConfig{CycleInterval: ptrString("soon")}, true},
		{"good cycle interval", &TuningConfig{CycleInterval: ptrString("90s")}, false},
		{"peak candidates zero", &TuningConfig{PeakMaxCandidates: ptrInt(0)}, true},
		{"rel height one", &TuningConfig{PeakMinRelHeight: ptrFloat64(1.0)}, true},
		{"udp port high", &TuningConfig{UDPPort: ptrInt(70000)}, true},
		{"queue size zero", &TuningConfig{BatchQueueSize: ptrInt(0)}, true},
		{"bad source name", &TuningConfig{BadChannelSource: ptrString("ccdb")}, true},
		{"http source without url", &TuningConfig{BadChannelSource: ptrString("http")}, true},
		{
			"http source with url",
			&TuningConfig{BadChannelSource: ptrString("http"), BadChannelURL: ptrString("http://calib:8080/badmap")},
			false,
		},
		{"db source", &TuningConfig{BadChannelSource: ptrString("db")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	// The canonical defaults file ships with the repo; the search walks up
	// from the package directory.
	cfg := MustLoadDefaultConfig()
	if cfg.GetMode() != ModeBaseline {
		t.Errorf("defaults file mode = %q, want %q", cfg.GetMode(), ModeBaseline)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults file failed validation: %v", err)
	}
}
