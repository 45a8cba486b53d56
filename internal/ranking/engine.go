package ranking

import (
	"log/slog"
	"math"
	"sort"

	"github.com/aipulse/toolrank/internal/tool"
)

// Tier names, best to worst.
const (
	TierSPlus = "S+"
	TierS     = "S"
	TierAPlus = "A+"
	TierA     = "A"
	TierBPlus = "B+"
	TierB     = "B"
	TierC     = "C"
	TierD     = "D"
)

// tierThreshold maps an inclusive lower score bound to a tier. The table
// is evaluated in order; a score exactly at a boundary takes the higher
// tier.
type tierThreshold struct {
	min  float64
	tier string
}

var tierTable = []tierThreshold{
	{90, TierSPlus},
	{85, TierS},
	{80, TierAPlus},
	{70, TierA},
	{60, TierBPlus},
	{50, TierB},
	{40, TierC},
}

// TierFor maps an overall score to its tier. Scores below every
// threshold fall into TierD.
func TierFor(score float64) string {
	for _, t := range tierTable {
		if score >= t.min {
			return t.tier
		}
	}
	return TierD
}

// ToolScore is the result of scoring a single tool.
type ToolScore struct {
	ToolID       string             `json:"tool_id"`
	Overall      float64            `json:"overall"`
	FactorScores map[string]float64 `json:"factor_scores"`
}

// RankedTool is one position in a computed ranking.
type RankedTool struct {
	ToolID       string             `json:"tool_id"`
	Rank         int                `json:"rank"`
	Tier         string             `json:"tier"`
	Score        float64            `json:"score"`
	FactorScores map[string]float64 `json:"factor_scores"`
}

// Engine computes scores and orders tools into rankings under a fixed
// weight configuration.
type Engine struct {
	weights *Weights
	logger  *slog.Logger
}

// NewEngine creates a ranking engine. Nil weights fall back to defaults.
func NewEngine(weights *Weights, logger *slog.Logger) *Engine {
	if weights == nil {
		weights = DefaultWeights()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{weights: weights, logger: logger}
}

// Weights returns the engine's weight configuration.
func (e *Engine) Weights() *Weights {
	return e.weights
}

// AlgorithmVersion returns the version tag of the active weights.
func (e *Engine) AlgorithmVersion() string {
	return e.weights.AlgorithmVersion
}

// Score combines the tool's baseline and delta scores and computes the
// weighted overall score. Factors are normalized (clamped) to [0, 100]
// before weighting and accumulated in the canonical factor order, so the
// result is reproducible for identical inputs. A tool with no metrics and
// no baseline still scores from its category defaults; it is never
// excluded.
func (e *Engine) Score(t *tool.Tool) ToolScore {
	factors := tool.Combine(t.Category, t.BaselineScore, t.DeltaScore)

	var overall float64
	for _, f := range tool.Factors {
		overall += factors[f] * e.weights.For(f)
	}

	return ToolScore{
		ToolID:       t.ID,
		Overall:      roundScore(overall),
		FactorScores: factors,
	}
}

// Rank scores every tool and orders them into a ranking: descending by
// overall score, ties broken by ascending tool ID so the order is total
// and never depends on input iteration order. Ranks are contiguous,
// 1-based, strictly increasing as score decreases or the tie-break key
// increases.
func (e *Engine) Rank(tools []*tool.Tool) []RankedTool {
	scored := make([]ToolScore, 0, len(tools))
	for _, t := range tools {
		scored = append(scored, e.Score(t))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Overall != scored[j].Overall {
			return scored[i].Overall > scored[j].Overall
		}
		return scored[i].ToolID < scored[j].ToolID
	})

	ranked := make([]RankedTool, len(scored))
	for i, s := range scored {
		ranked[i] = RankedTool{
			ToolID:       s.ToolID,
			Rank:         i + 1,
			Tier:         TierFor(s.Overall),
			Score:        s.Overall,
			FactorScores: s.FactorScores,
		}
	}
	return ranked
}

// roundScore rounds an overall score to one decimal place.
func roundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
