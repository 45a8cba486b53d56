// Package tool provides the tool data model and the score model that
// combines baseline and delta factor scores into a cached current score.
package tool

import (
	"time"
)

// Scoring factor names. Factor maps are keyed by these constants.
const (
	FactorAgenticCapability    = "agentic_capability"
	FactorInnovation           = "innovation"
	FactorTechnicalPerformance = "technical_performance"
	FactorDeveloperAdoption    = "developer_adoption"
	FactorMarketTraction       = "market_traction"
	FactorBusinessSentiment    = "business_sentiment"
	FactorDevelopmentVelocity  = "development_velocity"
	FactorPlatformResilience   = "platform_resilience"
)

// Factors lists every scoring factor in canonical order. All factor
// iteration (combining, weighting, serialization) must go through this
// slice so that floating point accumulation order is fixed and two runs
// over the same inputs produce identical output.
var Factors = []string{
	FactorAgenticCapability,
	FactorInnovation,
	FactorTechnicalPerformance,
	FactorDeveloperAdoption,
	FactorMarketTraction,
	FactorBusinessSentiment,
	FactorDevelopmentVelocity,
	FactorPlatformResilience,
}

// Tool statuses.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
)

// CurrentScore is the cached result of combining baseline and delta
// scores. It is derived state, never the source of truth.
type CurrentScore struct {
	// Factors holds the combined per-factor scores, each in [0, 100].
	Factors map[string]float64 `json:"factors"`

	// Overall is the weighted overall score computed by the ranking engine.
	Overall float64 `json:"overall"`

	// UpdatedAt records when the cache last changed. It is not touched
	// when a recompute produces an unchanged result.
	UpdatedAt time.Time `json:"score_updated_at"`
}

// Tool represents a ranked software tool.
type Tool struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`

	// BaselineScore holds editorially set per-factor starting values,
	// changed infrequently. Factors may be absent; the score model fills
	// them with category defaults when combining.
	BaselineScore map[string]float64 `json:"baseline_score"`

	// DeltaScore holds accumulated per-factor adjustments driven by
	// ingested content.
	DeltaScore map[string]float64 `json:"delta_score"`

	// CurrentScore caches combine(BaselineScore, DeltaScore).
	CurrentScore CurrentScore `json:"current_score"`
}

// Clone returns a deep copy of the tool. Preview computations operate on
// clones so that shared repository state is never mutated.
func (t *Tool) Clone() *Tool {
	c := *t
	c.BaselineScore = copyFactorMap(t.BaselineScore)
	c.DeltaScore = copyFactorMap(t.DeltaScore)
	c.CurrentScore.Factors = copyFactorMap(t.CurrentScore.Factors)
	return &c
}

func copyFactorMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
