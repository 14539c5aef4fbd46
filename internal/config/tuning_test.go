package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.MaxPoints == nil || *cfg.MaxPoints != 100 {
		t.Errorf("Expected MaxPoints 100, got %v", cfg.MaxPoints)
	}
	if cfg.QualityLevel == nil || *cfg.QualityLevel != 0.3 {
		t.Errorf("Expected QualityLevel 0.3, got %v", cfg.QualityLevel)
	}
	if cfg.WindowSize == nil || *cfg.WindowSize != 15 {
		t.Errorf("Expected WindowSize 15, got %v", cfg.WindowSize)
	}
	if cfg.HistoryCapacity == nil || *cfg.HistoryCapacity != 300 {
		t.Errorf("Expected HistoryCapacity 300, got %v", cfg.HistoryCapacity)
	}

	if cfg.GetEpsilon() != 0.03 {
		t.Errorf("GetEpsilon() = %f, want 0.03", cfg.GetEpsilon())
	}
	if cfg.GetBandLowHz() != 0.1 || cfg.GetBandHighHz() != 1.0 {
		t.Errorf("band = %f..%f, want 0.1..1.0", cfg.GetBandLowHz(), cfg.GetBandHighHz())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultTuningConfig(), fromFile); diff != "" {
		t.Errorf("config/tuning.defaults.json drifted from built-in defaults (-builtin +file):\n%s", diff)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "max_points": 50,
  "window_size": 21,
  "sample_rate_hz": 25
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetMaxPoints() != 50 {
		t.Errorf("GetMaxPoints() = %d, want 50", cfg.GetMaxPoints())
	}
	if cfg.GetWindowSize() != 21 {
		t.Errorf("GetWindowSize() = %d, want 21", cfg.GetWindowSize())
	}
	if cfg.GetSampleRateHz() != 25 {
		t.Errorf("GetSampleRateHz() = %f, want 25", cfg.GetSampleRateHz())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetPyramidLevels() != 2 {
		t.Errorf("GetPyramidLevels() = %d, want 2", cfg.GetPyramidLevels())
	}
	if cfg.QualityLevel != nil {
		t.Errorf("QualityLevel should stay nil when omitted, got %v", *cfg.QualityLevel)
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"even window", write("even.json", `{"window_size": 14}`), "window_size"},
		{"inverted band", write("band.json", `{"band_low_hz": 1.0, "band_high_hz": 0.5}`), "band"},
		{"above nyquist", write("nyq.json", `{"sample_rate_hz": 1.0, "band_high_hz": 0.9}`), "Nyquist"},
		{"quality zero", write("q.json", `{"quality_level": 0}`), "quality_level"},
		{"tiny history", write("h.json", `{"history_capacity": 1}`), "history_capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
