// Package ranking provides the deterministic multi-factor scoring and
// ranking engine with versioned, calibratable weight configurations.
package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/aipulse/toolrank/internal/tool"
)

// WeightEpsilon is the tolerance for validating that weights sum to 1.0.
const WeightEpsilon = 1e-6

// ErrInvalidWeights is returned when a weight configuration does not sum
// to 1.0 within WeightEpsilon or contains a negative weight.
var ErrInvalidWeights = errors.New("ranking weights must be non-negative and sum to 1.0")

// Weights defines the per-factor ranking weights. A Weights value is
// immutable once loaded; two rankings computed under the same
// AlgorithmVersion are reproducible.
type Weights struct {
	AlgorithmVersion string `json:"algorithm_version"`

	AgenticCapability    float64 `json:"agentic_capability"`    // Weight for autonomy (default: 0.25)
	Innovation           float64 `json:"innovation"`            // Weight for innovation (default: 0.125)
	TechnicalPerformance float64 `json:"technical_performance"` // Weight for technical capability (default: 0.125)
	DeveloperAdoption    float64 `json:"developer_adoption"`    // Weight for adoption (default: 0.125)
	MarketTraction       float64 `json:"market_traction"`       // Weight for market position (default: 0.125)
	BusinessSentiment    float64 `json:"business_sentiment"`    // Weight for news sentiment (default: 0.15)
	DevelopmentVelocity  float64 `json:"development_velocity"`  // Weight for release cadence (default: 0.05)
	PlatformResilience   float64 `json:"platform_resilience"`   // Weight for resilience (default: 0.05)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight overrides
}

// DefaultWeights returns the default weight configuration.
//
// Formula: overall = sum over factors of (normalized_factor * weight).
// Agentic capability dominates because autonomy is the primary quality
// signal for ranked tools; business sentiment carries the article-driven
// adjustments; velocity and resilience are minor stabilizers.
func DefaultWeights() *Weights {
	return &Weights{
		AlgorithmVersion:     "v7.0",
		AgenticCapability:    0.25,
		Innovation:           0.125,
		TechnicalPerformance: 0.125,
		DeveloperAdoption:    0.125,
		MarketTraction:       0.125,
		BusinessSentiment:    0.15,
		DevelopmentVelocity:  0.05,
		PlatformResilience:   0.05,
	}
}

// For returns the weight for a named factor. Unknown factors weigh zero.
func (w *Weights) For(factor string) float64 {
	switch factor {
	case tool.FactorAgenticCapability:
		return w.AgenticCapability
	case tool.FactorInnovation:
		return w.Innovation
	case tool.FactorTechnicalPerformance:
		return w.TechnicalPerformance
	case tool.FactorDeveloperAdoption:
		return w.DeveloperAdoption
	case tool.FactorMarketTraction:
		return w.MarketTraction
	case tool.FactorBusinessSentiment:
		return w.BusinessSentiment
	case tool.FactorDevelopmentVelocity:
		return w.DevelopmentVelocity
	case tool.FactorPlatformResilience:
		return w.PlatformResilience
	}
	return 0
}

// Sum returns the total of all factor weights.
func (w *Weights) Sum() float64 {
	var sum float64
	for _, f := range tool.Factors {
		sum += w.For(f)
	}
	return sum
}

// Validate checks that every weight is non-negative and the sum is
// 1.0 within WeightEpsilon.
func (w *Weights) Validate() error {
	for _, f := range tool.Factors {
		if w.For(f) < 0 {
			return fmt.Errorf("%w: factor %s is negative", ErrInvalidWeights, f)
		}
	}
	if math.Abs(w.Sum()-1.0) > WeightEpsilon {
		return fmt.Errorf("%w: sum is %f", ErrInvalidWeights, w.Sum())
	}
	return nil
}

// Fingerprint returns a short stable identifier for this weight
// configuration, used in preview cache keys so that a calibration change
// invalidates cached computations.
func (w *Weights) Fingerprint() string {
	return fmt.Sprintf("%s:%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f",
		w.AlgorithmVersion,
		w.AgenticCapability, w.Innovation, w.TechnicalPerformance, w.DeveloperAdoption,
		w.MarketTraction, w.BusinessSentiment, w.DevelopmentVelocity, w.PlatformResilience)
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// If no path is given, the defaults are returned. Partial configurations
// are merged with defaults; the merged result must validate, otherwise
// defaults are returned with the validation error.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	merged := MergeCalibration(DefaultWeights(), &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibration produced invalid weights, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), err
	}

	slog.Info("loaded ranking calibration",
		"path", filePath,
		"algorithm_version", merged.AlgorithmVersion)
	return merged, nil
}

// MergeCalibration merges override weights with base weights. Only
// non-zero values from the override are applied, which allows partial
// overrides in the calibration file.
func MergeCalibration(base, override *Weights) *Weights {
	if base == nil {
		base = DefaultWeights()
	}
	result := *base
	if override == nil {
		return &result
	}

	if override.AlgorithmVersion != "" {
		result.AlgorithmVersion = override.AlgorithmVersion
	}
	if override.AgenticCapability != 0 {
		result.AgenticCapability = override.AgenticCapability
	}
	if override.Innovation != 0 {
		result.Innovation = override.Innovation
	}
	if override.TechnicalPerformance != 0 {
		result.TechnicalPerformance = override.TechnicalPerformance
	}
	if override.DeveloperAdoption != 0 {
		result.DeveloperAdoption = override.DeveloperAdoption
	}
	if override.MarketTraction != 0 {
		result.MarketTraction = override.MarketTraction
	}
	if override.BusinessSentiment != 0 {
		result.BusinessSentiment = override.BusinessSentiment
	}
	if override.DevelopmentVelocity != 0 {
		result.DevelopmentVelocity = override.DevelopmentVelocity
	}
	if override.PlatformResilience != 0 {
		result.PlatformResilience = override.PlatformResilience
	}
	return &result
}
