package ranking

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aipulse/toolrank/internal/tool"
)

// TestDefaultWeightsValidate verifies the shipped configuration sums to 1.0.
func TestDefaultWeightsValidate(t *testing.T) {
	w := DefaultWeights()
	if err := w.Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
	if w.AlgorithmVersion != "v7.0" {
		t.Errorf("expected algorithm version v7.0, got %s", w.AlgorithmVersion)
	}
}

// TestWeightsFor verifies the per-factor weight lookup.
func TestWeightsFor(t *testing.T) {
	w := DefaultWeights()

	tests := []struct {
		factor   string
		expected float64
	}{
		{tool.FactorAgenticCapability, 0.25},
		{tool.FactorInnovation, 0.125},
		{tool.FactorTechnicalPerformance, 0.125},
		{tool.FactorDeveloperAdoption, 0.125},
		{tool.FactorMarketTraction, 0.125},
		{tool.FactorBusinessSentiment, 0.15},
		{tool.FactorDevelopmentVelocity, 0.05},
		{tool.FactorPlatformResilience, 0.05},
		{"unknown_factor", 0},
	}

	for _, tt := range tests {
		t.Run(tt.factor, func(t *testing.T) {
			if got := w.For(tt.factor); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestWeightsValidateErrors tests rejection of malformed configurations.
func TestWeightsValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Weights)
	}{
		{
			name:   "sum above one",
			mutate: func(w *Weights) { w.AgenticCapability = 0.5 },
		},
		{
			name:   "sum below one",
			mutate: func(w *Weights) { w.BusinessSentiment = 0 },
		},
		{
			name: "negative weight",
			mutate: func(w *Weights) {
				w.AgenticCapability = -0.05
				w.Innovation = 0.425
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(w)
			if err := w.Validate(); !errors.Is(err, ErrInvalidWeights) {
				t.Errorf("expected ErrInvalidWeights, got %v", err)
			}
		})
	}
}

// TestMergeCalibration tests partial overrides over the defaults.
func TestMergeCalibration(t *testing.T) {
	override := &Weights{
		AlgorithmVersion:  "v7.1",
		BusinessSentiment: 0.2,
	}
	merged := MergeCalibration(DefaultWeights(), override)

	if merged.AlgorithmVersion != "v7.1" {
		t.Errorf("expected version v7.1, got %s", merged.AlgorithmVersion)
	}
	if merged.BusinessSentiment != 0.2 {
		t.Errorf("expected business sentiment 0.2, got %v", merged.BusinessSentiment)
	}
	// Untouched weights keep their defaults.
	if merged.AgenticCapability != 0.25 {
		t.Errorf("expected agentic capability 0.25, got %v", merged.AgenticCapability)
	}

	if got := MergeCalibration(DefaultWeights(), nil); got.BusinessSentiment != 0.15 {
		t.Errorf("nil override changed weights: %v", got.BusinessSentiment)
	}
}

// TestFingerprint verifies that any weight or version change alters the
// fingerprint.
func TestFingerprint(t *testing.T) {
	base := DefaultWeights()

	changed := *base
	changed.BusinessSentiment = 0.125
	changed.MarketTraction = 0.15

	if base.Fingerprint() == changed.Fingerprint() {
		t.Error("fingerprint unchanged after weight change")
	}

	versioned := *base
	versioned.AlgorithmVersion = "v8.0"
	if base.Fingerprint() == versioned.Fingerprint() {
		t.Error("fingerprint unchanged after version change")
	}

	if base.Fingerprint() != DefaultWeights().Fingerprint() {
		t.Error("fingerprint not stable for identical weights")
	}
}

// TestLoadCalibration tests calibration file loading and fallbacks.
func TestLoadCalibration(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		w, err := LoadCalibration("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.AlgorithmVersion != "v7.0" {
			t.Errorf("expected defaults, got %s", w.AlgorithmVersion)
		}
	})

	t.Run("valid partial override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		data := `{"version":"1","weights":{"algorithm_version":"v7.2","business_sentiment":0.2,"market_traction":0.075}}`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		w, err := LoadCalibration(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.AlgorithmVersion != "v7.2" {
			t.Errorf("expected v7.2, got %s", w.AlgorithmVersion)
		}
		if w.BusinessSentiment != 0.2 || w.MarketTraction != 0.075 {
			t.Errorf("override not applied: %+v", w)
		}
		if err := w.Validate(); err != nil {
			t.Errorf("merged weights invalid: %v", err)
		}
	})

	t.Run("invalid sum falls back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		data := `{"weights":{"business_sentiment":0.9}}`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		w, err := LoadCalibration(path)
		if !errors.Is(err, ErrInvalidWeights) {
			t.Fatalf("expected ErrInvalidWeights, got %v", err)
		}
		if w.BusinessSentiment != 0.15 {
			t.Errorf("expected default weights on failure, got %+v", w)
		}
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		w, err := LoadCalibration(filepath.Join(t.TempDir(), "missing.json"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
		if w.AlgorithmVersion != "v7.0" {
			t.Errorf("expected defaults, got %s", w.AlgorithmVersion)
		}
	})
}
