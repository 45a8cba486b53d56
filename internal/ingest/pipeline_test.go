package ingest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/tool"
)

// stubAnalyzer returns a fixed analysis or error and counts calls.
type stubAnalyzer struct {
	analysis *Analysis
	err      error
	calls    int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, content string) (*Analysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

func testTools() []*tool.Tool {
	return []*tool.Tool{
		{ID: "tool-cursor", Slug: "cursor", Name: "Cursor", Category: "ide-assistant"},
		{ID: "tool-copilot", Slug: "github-copilot", Name: "GitHub Copilot", Category: "code-assistant"},
	}
}

// TestPipelineAnalyze tests the happy path: mentions resolved and
// aggregated into deltas.
func TestPipelineAnalyze(t *testing.T) {
	analyzer := &stubAnalyzer{analysis: &Analysis{
		Title: "Editor wars heat up",
		ToolMentions: []Mention{
			{Tool: "Cursor", Sentiment: 0.8, Relevance: 1.0},
			{Tool: "GitHub Copilot", Sentiment: -0.5, Relevance: 0.5},
		},
		OverallSentiment: 0.3,
		ImportanceScore:  8,
	}}
	p := NewPipeline(analyzer, nil)

	res, err := p.Analyze(context.Background(), "some article text", testTools())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(res.Mentions) != 2 {
		t.Fatalf("expected 2 resolved mentions, got %d", len(res.Mentions))
	}

	// Cursor: 0.8 * 1.0 * 0.8 = 0.64 impact -> 3.2 delta.
	cursorDelta := res.ProposedDeltas["tool-cursor"][tool.FactorBusinessSentiment]
	if math.Abs(cursorDelta-3.2) > 1e-9 {
		t.Errorf("expected cursor delta 3.2, got %v", cursorDelta)
	}
	// Copilot: -0.5 * 0.5 * 0.8 = -0.2 impact -> -1.0 delta.
	copilotDelta := res.ProposedDeltas["tool-copilot"][tool.FactorBusinessSentiment]
	if math.Abs(copilotDelta-(-1.0)) > 1e-9 {
		t.Errorf("expected copilot delta -1.0, got %v", copilotDelta)
	}
}

// TestPipelineAnalyzeEmptyContent verifies malformed input is a hard error.
func TestPipelineAnalyzeEmptyContent(t *testing.T) {
	p := NewPipeline(&stubAnalyzer{}, nil)
	if _, err := p.Analyze(context.Background(), "   ", testTools()); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

// TestPipelineAnalyzeDegraded verifies collaborator failure degrades to an
// empty delta set instead of failing.
func TestPipelineAnalyzeDegraded(t *testing.T) {
	p := NewPipeline(&stubAnalyzer{err: ErrAnalyzerUnavailable}, nil)

	res, err := p.Analyze(context.Background(), "some article text", testTools())
	if err != nil {
		t.Fatalf("expected degraded result, got error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected Degraded = true")
	}
	if res.DegradedReason == "" {
		t.Error("expected a degraded reason")
	}
	if len(res.ProposedDeltas) != 0 {
		t.Errorf("expected empty delta set, got %v", res.ProposedDeltas)
	}
}

// TestResolveMentions tests mention-to-tool matching.
func TestResolveMentions(t *testing.T) {
	tests := []struct {
		name    string
		mention string
		wantID  string
		wantHit bool
	}{
		{name: "exact name", mention: "Cursor", wantID: "tool-cursor", wantHit: true},
		{name: "case insensitive name", mention: "cursor", wantID: "tool-cursor", wantHit: true},
		{name: "slug form", mention: "github-copilot", wantID: "tool-copilot", wantHit: true},
		{name: "slugified name", mention: "GitHub Copilot!", wantID: "tool-copilot", wantHit: true},
		{name: "tool id", mention: "tool-cursor", wantID: "tool-cursor", wantHit: true},
		{name: "unknown tool dropped", mention: "Totally New Tool", wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := ResolveMentions([]Mention{{Tool: tt.mention, Sentiment: 0.5, Relevance: 0.5}}, testTools())
			if !tt.wantHit {
				if len(resolved) != 0 {
					t.Errorf("expected mention to be dropped, got %+v", resolved)
				}
				return
			}
			if len(resolved) != 1 {
				t.Fatalf("expected 1 resolved mention, got %d", len(resolved))
			}
			if resolved[0].ToolID != tt.wantID {
				t.Errorf("expected %s, got %s", tt.wantID, resolved[0].ToolID)
			}
		})
	}
}

// TestAggregateDeltas tests the aggregation rule: mean impact, scaling,
// and the cap.
func TestAggregateDeltas(t *testing.T) {
	mkMention := func(id string, sentiment, relevance float64) article.ToolMention {
		return article.ToolMention{ToolID: id, Sentiment: sentiment, Relevance: relevance}
	}

	tests := []struct {
		name       string
		mentions   []article.ToolMention
		importance float64
		expected   map[string]float64
	}{
		{
			name:       "single mention",
			mentions:   []article.ToolMention{mkMention("t1", 0.5, 0.8)},
			importance: 10,
			expected:   map[string]float64{"t1": 2.0},
		},
		{
			name: "multiple mentions average",
			mentions: []article.ToolMention{
				mkMention("t1", 1.0, 1.0),
				mkMention("t1", 0.0, 1.0),
			},
			importance: 10,
			expected:   map[string]float64{"t1": 2.5},
		},
		{
			name:       "positive cap",
			mentions:   []article.ToolMention{mkMention("t1", 1.0, 1.0), mkMention("t1", 1.0, 1.0), mkMention("t1", 1.0, 1.0)},
			importance: 10.0,
			expected:   map[string]float64{"t1": MaxSentimentDelta},
		},
		{
			name:       "negative cap",
			mentions:   []article.ToolMention{mkMention("t1", -1.0, 1.0)},
			importance: 10,
			expected:   map[string]float64{"t1": -MaxSentimentDelta},
		},
		{
			name:       "zero importance yields zero delta",
			mentions:   []article.ToolMention{mkMention("t1", 1.0, 1.0)},
			importance: 0,
			expected:   map[string]float64{"t1": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateDeltas(tt.mentions, tt.importance)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d tools, got %d", len(tt.expected), len(got))
			}
			for id, want := range tt.expected {
				delta := got[id][tool.FactorBusinessSentiment]
				if math.Abs(delta-want) > 1e-9 {
					t.Errorf("tool %s: expected delta %v, got %v", id, want, delta)
				}
			}
		})
	}
}

// TestAggregateDeltasDeterminism verifies identical input produces
// identical deltas across runs.
func TestAggregateDeltasDeterminism(t *testing.T) {
	mentions := []article.ToolMention{
		{ToolID: "t1", Sentiment: 0.31, Relevance: 0.77},
		{ToolID: "t2", Sentiment: -0.12, Relevance: 0.5},
		{ToolID: "t1", Sentiment: 0.9, Relevance: 0.61},
	}

	first := AggregateDeltas(mentions, 7.3)
	for i := 0; i < 100; i++ {
		again := AggregateDeltas(mentions, 7.3)
		for id, factors := range first {
			if again[id][tool.FactorBusinessSentiment] != factors[tool.FactorBusinessSentiment] {
				t.Fatalf("run %d: delta for %s differs", i, id)
			}
		}
	}
}
