// Package metricsource defines the port for external tool metrics
// (repository stars, user counts, revenue signals) and the mapping from
// raw metrics to baseline factor scores. Collection runs on an external
// schedule; ranking never blocks on a metric source.
package metricsource

import (
	"context"
	"time"

	"github.com/aipulse/toolrank/internal/tool"
)

// Well-known metric names. Sources may report others; unknown metrics
// are carried through untouched but do not feed baseline scoring.
const (
	MetricNewsMentions = "news_mentions"
	MetricGithubStars  = "github_stars"
	MetricUsers        = "users"
	MetricMonthlyARR   = "monthly_arr"
	MetricValuation    = "valuation"
	MetricFunding      = "funding"
)

// Snapshot is one collection of raw metrics for a tool.
type Snapshot struct {
	ToolID      string             `json:"tool_id"`
	Source      string             `json:"source"`
	Metrics     map[string]float64 `json:"metrics"`
	CollectedAt time.Time          `json:"collected_at"`
}

// Source provides metric snapshots for known tools.
type Source interface {
	// Name identifies the source in logs and stored snapshots.
	Name() string

	// Collect gathers current metrics for the given tools. Partial
	// results are fine; a tool without data is simply absent.
	Collect(ctx context.Context, toolIDs []string) ([]Snapshot, error)
}

// ApplyToBaseline maps raw metrics onto baseline factor scores. A factor
// is written only when the metrics actually carry a signal for it, so a
// source reporting nothing but news mentions leaves an editorial traction
// baseline alone. The returned map merges over the given baseline without
// mutating it.
func ApplyToBaseline(baseline map[string]float64, metrics map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(baseline)+2)
	for k, v := range baseline {
		out[k] = v
	}
	if hasAny(metrics, MetricNewsMentions, MetricGithubStars, MetricUsers) {
		out[tool.FactorDeveloperAdoption] = AdoptionScore(metrics)
	}
	if hasAny(metrics, MetricMonthlyARR, MetricValuation, MetricFunding) {
		out[tool.FactorMarketTraction] = TractionScore(metrics)
	}
	return out
}

func hasAny(metrics map[string]float64, names ...string) bool {
	for _, n := range names {
		if _, ok := metrics[n]; ok {
			return true
		}
	}
	return false
}

// AdoptionScore derives a 0-100 developer adoption score from news
// mentions (the primary proxy), with repository stars and user counts as
// additive signals.
func AdoptionScore(metrics map[string]float64) float64 {
	score := 30.0

	switch mentions := metrics[MetricNewsMentions]; {
	case mentions >= 15:
		score = 90
	case mentions >= 10:
		score = 80
	case mentions >= 5:
		score = 70
	case mentions >= 3:
		score = 60
	case mentions >= 1:
		score = 50
	}

	switch stars := metrics[MetricGithubStars]; {
	case stars >= 50000:
		score += 20
	case stars >= 10000:
		score += 15
	case stars >= 1000:
		score += 10
	}

	switch users := metrics[MetricUsers]; {
	case users >= 1000000:
		score += 20
	case users >= 100000:
		score += 15
	case users >= 10000:
		score += 10
	}

	return tool.ClampScore(score)
}

// TractionScore derives a 0-100 market traction score from revenue,
// valuation, and funding signals.
func TractionScore(metrics map[string]float64) float64 {
	score := 40.0

	switch arr := metrics[MetricMonthlyARR]; {
	case arr >= 400000000:
		score = 100
	case arr >= 100000000:
		score = 90
	case arr >= 10000000:
		score = 80
	case arr >= 1000000:
		score = 70
	}

	if metrics[MetricValuation] >= 1000000000 || metrics[MetricFunding] >= 100000000 {
		score += 10
	}

	return tool.ClampScore(score)
}

// StaticSource serves a fixed set of snapshots. Used for testing and for
// seeding environments without live collectors.
type StaticSource struct {
	SourceName string
	Snapshots  []Snapshot
}

// Name identifies the source.
func (s *StaticSource) Name() string {
	if s.SourceName == "" {
		return "static"
	}
	return s.SourceName
}

// Collect returns the snapshots matching the requested tool IDs.
func (s *StaticSource) Collect(ctx context.Context, toolIDs []string) ([]Snapshot, error) {
	want := make(map[string]bool, len(toolIDs))
	for _, id := range toolIDs {
		want[id] = true
	}
	var out []Snapshot
	for _, snap := range s.Snapshots {
		if want[snap.ToolID] {
			out = append(out, snap)
		}
	}
	return out, nil
}
