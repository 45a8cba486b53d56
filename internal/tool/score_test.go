package tool

import (
	"testing"
	"time"
)

// TestCategoryDefault tests the category default lookup.
func TestCategoryDefault(t *testing.T) {
	tests := []struct {
		name     string
		category string
		expected float64
	}{
		{name: "autonomous agent", category: "autonomous-agent", expected: 80},
		{name: "ide assistant", category: "ide-assistant", expected: 60},
		{name: "code assistant", category: "code-assistant", expected: 50},
		{name: "app builder", category: "app-builder", expected: 40},
		{name: "research tool", category: "research-tool", expected: 30},
		{name: "general assistant", category: "general-assistant", expected: 20},
		{name: "unknown category", category: "spreadsheet", expected: DefaultFactorScore},
		{name: "empty category", category: "", expected: DefaultFactorScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryDefault(tt.category); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestCombine tests merging baseline and delta into current factor scores.
func TestCombine(t *testing.T) {
	tests := []struct {
		name     string
		category string
		baseline map[string]float64
		delta    map[string]float64
		checks   map[string]float64
	}{
		{
			name:     "missing baseline uses category default",
			category: "autonomous-agent",
			baseline: map[string]float64{FactorInnovation: 70},
			delta:    nil,
			checks: map[string]float64{
				FactorInnovation:        70,
				FactorAgenticCapability: 80, // category default
				FactorMarketTraction:    80, // category default
			},
		},
		{
			name:     "delta applies on top of baseline",
			category: "code-assistant",
			baseline: map[string]float64{FactorBusinessSentiment: 60},
			delta:    map[string]float64{FactorBusinessSentiment: 3.5},
			checks:   map[string]float64{FactorBusinessSentiment: 63.5},
		},
		{
			name:     "delta applies on top of category default",
			category: "research-tool",
			baseline: nil,
			delta:    map[string]float64{FactorBusinessSentiment: -5},
			checks:   map[string]float64{FactorBusinessSentiment: 25},
		},
		{
			name:     "result clamped to upper bound",
			category: "code-assistant",
			baseline: map[string]float64{FactorInnovation: 99},
			delta:    map[string]float64{FactorInnovation: 5},
			checks:   map[string]float64{FactorInnovation: 100},
		},
		{
			name:     "result clamped to lower bound",
			category: "code-assistant",
			baseline: map[string]float64{FactorInnovation: 2},
			delta:    map[string]float64{FactorInnovation: -5},
			checks:   map[string]float64{FactorInnovation: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.category, tt.baseline, tt.delta)

			if len(got) != len(Factors) {
				t.Errorf("expected %d factors, got %d", len(Factors), len(got))
			}
			for factor, want := range tt.checks {
				if got[factor] != want {
					t.Errorf("factor %s: expected %v, got %v", factor, want, got[factor])
				}
			}
			for factor, v := range got {
				if v < 0 || v > 100 {
					t.Errorf("factor %s out of range: %v", factor, v)
				}
			}
		})
	}
}

// TestCombineIsTotal verifies that every canonical factor is present even
// with empty inputs.
func TestCombineIsTotal(t *testing.T) {
	got := Combine("", nil, nil)
	for _, f := range Factors {
		if _, ok := got[f]; !ok {
			t.Errorf("factor %s missing from combine result", f)
		}
	}
}

// TestApplyScore tests the idempotent current score cache update.
func TestApplyScore(t *testing.T) {
	t0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	tool := &Tool{ID: "t1", Category: "code-assistant"}
	factors := Combine(tool.Category, nil, nil)

	if !ApplyScore(tool, factors, 50.0, t0) {
		t.Fatal("expected first apply to update the cache")
	}
	if !tool.CurrentScore.UpdatedAt.Equal(t0) {
		t.Errorf("expected UpdatedAt %v, got %v", t0, tool.CurrentScore.UpdatedAt)
	}

	// Identical recompute must not touch the timestamp.
	if ApplyScore(tool, Combine(tool.Category, nil, nil), 50.0, t1) {
		t.Error("expected unchanged recompute to be a no-op")
	}
	if !tool.CurrentScore.UpdatedAt.Equal(t0) {
		t.Errorf("UpdatedAt changed on no-op recompute: %v", tool.CurrentScore.UpdatedAt)
	}

	// A changed score updates the timestamp.
	changed := Combine(tool.Category, nil, map[string]float64{FactorBusinessSentiment: 2})
	if !ApplyScore(tool, changed, 50.3, t2) {
		t.Fatal("expected changed recompute to update the cache")
	}
	if !tool.CurrentScore.UpdatedAt.Equal(t2) {
		t.Errorf("expected UpdatedAt %v, got %v", t2, tool.CurrentScore.UpdatedAt)
	}
}

// TestClone verifies that clones do not share factor maps.
func TestClone(t *testing.T) {
	orig := &Tool{
		ID:            "t1",
		BaselineScore: map[string]float64{FactorInnovation: 60},
		DeltaScore:    map[string]float64{FactorBusinessSentiment: 1},
	}
	clone := orig.Clone()
	clone.BaselineScore[FactorInnovation] = 99
	clone.DeltaScore[FactorBusinessSentiment] = -4

	if orig.BaselineScore[FactorInnovation] != 60 {
		t.Error("clone shares baseline map with original")
	}
	if orig.DeltaScore[FactorBusinessSentiment] != 1 {
		t.Error("clone shares delta map with original")
	}
}
