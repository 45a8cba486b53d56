package tool

import (
	"log/slog"
	"time"
)

// Category default scores used when a tool has no baseline value for a
// factor. A large fraction of tools lack third-party metrics, so missing
// baselines are the normal case, not an error. The defaults reflect the
// typical autonomy level of tools in each category and are the single
// source of fallback values for every code path.
var categoryDefaults = map[string]float64{
	"autonomous-agent":  80,
	"ide-assistant":     60,
	"code-assistant":    50,
	"app-builder":       40,
	"research-tool":     30,
	"general-assistant": 20,
}

// DefaultFactorScore is the fallback for categories not in the table.
const DefaultFactorScore = 50

// CategoryDefault returns the default factor score for a category.
func CategoryDefault(category string) float64 {
	if v, ok := categoryDefaults[category]; ok {
		return v
	}
	return DefaultFactorScore
}

// Combine merges baseline and delta scores into the current per-factor
// scores. It is a pure function, total over all factors: a factor missing
// from the baseline resolves to the category default, and every result is
// clamped to [0, 100]. Iteration follows the canonical Factors order.
func Combine(category string, baseline, delta map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(Factors))
	for _, f := range Factors {
		base, ok := baseline[f]
		if !ok {
			base = CategoryDefault(category)
			slog.Debug("baseline factor missing, using category default",
				"factor", f,
				"category", category,
				"default", base)
		}
		out[f] = ClampScore(base + delta[f])
	}
	return out
}

// ApplyScore refreshes the cached current score from a combine result and
// overall score. It is idempotent: when neither the factor scores nor the
// overall differ from the cache, nothing changes, including UpdatedAt.
// Returns true if the cache was updated.
func ApplyScore(t *Tool, factors map[string]float64, overall float64, now time.Time) bool {
	if t.CurrentScore.Overall == overall && equalFactorScores(t.CurrentScore.Factors, factors) {
		return false
	}
	t.CurrentScore.Factors = factors
	t.CurrentScore.Overall = overall
	t.CurrentScore.UpdatedAt = now
	return true
}

// ClampScore clamps a factor score to the [0, 100] range.
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func equalFactorScores(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for _, f := range Factors {
		av, aok := a[f]
		bv, bok := b[f]
		if aok != bok || av != bv {
			return false
		}
	}
	return true
}
