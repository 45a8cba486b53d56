package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/tool"
)

// Aggregation rule constants. A single article may not move a tool's
// business sentiment by more than MaxSentimentDelta points.
const (
	// SentimentDeltaScale converts a mean mention impact (in [-1, 1])
	// into score points on the business_sentiment factor.
	SentimentDeltaScale = 5.0

	// MaxSentimentDelta caps the magnitude of a proposed per-tool delta.
	MaxSentimentDelta = 5.0
)

// Result is the outcome of analyzing one piece of content.
type Result struct {
	// Analysis is the collaborator's structured output. On a degraded
	// run it holds only whatever could be salvaged (possibly nothing).
	Analysis *Analysis

	// Mentions are tool mentions resolved against known tools; mentions
	// of unknown tools are dropped from delta computation but retained
	// in Analysis.
	Mentions []article.ToolMention

	// ProposedDeltas maps tool ID to per-factor score adjustments.
	// Re-running analysis on identical content yields identical deltas.
	ProposedDeltas map[string]map[string]float64

	// Degraded is true when the analysis collaborator failed or timed
	// out and the pipeline fell back to an empty delta set. It is false
	// for a successful analysis that simply found no mentions.
	Degraded bool

	// DegradedReason describes the degradation, empty otherwise.
	DegradedReason string
}

// Pipeline extracts tool mentions from content via the analysis
// collaborator and aggregates them into proposed score deltas.
type Pipeline struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(analyzer Analyzer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{analyzer: analyzer, logger: logger}
}

// Analyze runs the collaborator over the content and aggregates mentions
// into proposed deltas against the given tool set.
//
// Aggregation rule: each mention contributes an impact of
// sentiment * relevance * (importance / 10); multiple mentions of the
// same tool combine by arithmetic mean; the proposed delta is the mean
// impact scaled by SentimentDeltaScale, applied to the business_sentiment
// factor and capped at +/- MaxSentimentDelta.
//
// Collaborator failure degrades to an empty delta set (Degraded = true)
// rather than failing the operation. Malformed input is a hard error.
func (p *Pipeline) Analyze(ctx context.Context, content string, tools []*tool.Tool) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrMalformedInput
	}

	analysis, err := p.analyzer.Analyze(ctx, content)
	if err != nil {
		if errors.Is(err, ErrMalformedInput) {
			return nil, err
		}
		p.logger.Warn("analysis degraded, proceeding with empty delta set", "error", err)
		return &Result{
			Analysis:       &Analysis{},
			ProposedDeltas: map[string]map[string]float64{},
			Degraded:       true,
			DegradedReason: err.Error(),
		}, nil
	}

	mentions := ResolveMentions(analysis.ToolMentions, tools)
	return &Result{
		Analysis:       analysis,
		Mentions:       mentions,
		ProposedDeltas: AggregateDeltas(mentions, analysis.ImportanceScore),
	}, nil
}

// ResolveMentions matches mention names against known tools by slug,
// lowercase name, or ID. Unresolvable mentions are dropped; they refer to
// tools outside the ranked set.
func ResolveMentions(mentions []Mention, tools []*tool.Tool) []article.ToolMention {
	index := make(map[string]string, len(tools)*3)
	for _, t := range tools {
		index[strings.ToLower(t.Name)] = t.ID
		index[t.Slug] = t.ID
		index[t.ID] = t.ID
	}

	var resolved []article.ToolMention
	for _, m := range mentions {
		id, ok := index[strings.ToLower(m.Tool)]
		if !ok {
			id, ok = index[article.Slugify(m.Tool)]
		}
		if !ok {
			continue
		}
		resolved = append(resolved, article.ToolMention{
			ToolID:    id,
			Tool:      m.Tool,
			Context:   m.Context,
			Sentiment: m.Sentiment,
			Relevance: m.Relevance,
		})
	}
	return resolved
}

// AggregateDeltas combines resolved mentions into per-tool factor deltas
// using the documented rule. The computation is pure: identical mentions
// and importance produce identical deltas.
func AggregateDeltas(mentions []article.ToolMention, importance float64) map[string]map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, m := range mentions {
		sums[m.ToolID] += m.Sentiment * m.Relevance * (importance / 10)
		counts[m.ToolID]++
	}

	deltas := make(map[string]map[string]float64, len(sums))
	for id, sum := range sums {
		mean := sum / float64(counts[id])
		delta := mean * SentimentDeltaScale
		if delta > MaxSentimentDelta {
			delta = MaxSentimentDelta
		}
		if delta < -MaxSentimentDelta {
			delta = -MaxSentimentDelta
		}
		deltas[id] = map[string]float64{tool.FactorBusinessSentiment: delta}
	}
	return deltas
}
