// Package ingest implements the article ingestion pipeline: content
// extraction, delegation to the external analysis collaborator, and
// deterministic aggregation of tool mentions into proposed score deltas.
package ingest

import (
	"context"
	"errors"
)

// Analyzer errors. Collaborator failures are degraded conditions, not
// crashes: the pipeline downgrades them to an empty delta set. Malformed
// input is a hard failure and is reported distinctly.
var (
	// ErrAnalyzerUnavailable indicates the analysis collaborator could
	// not be reached or timed out.
	ErrAnalyzerUnavailable = errors.New("analysis collaborator unavailable")

	// ErrMalformedInput indicates the submitted content cannot be
	// processed at all.
	ErrMalformedInput = errors.New("malformed ingestion input")
)

// Mention is one tool reference extracted by the analysis collaborator.
type Mention struct {
	Tool      string  `json:"tool"`
	Context   string  `json:"context,omitempty"`
	Sentiment float64 `json:"sentiment"` // -1 to 1
	Relevance float64 `json:"relevance"` // 0 to 1
}

// Analysis is the structured result returned by the analysis
// collaborator for one piece of content.
type Analysis struct {
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	Source           string    `json:"source,omitempty"`
	Category         string    `json:"category,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	ToolMentions     []Mention `json:"tool_mentions"`
	OverallSentiment float64   `json:"overall_sentiment"` // -1 to 1
	ImportanceScore  float64   `json:"importance_score"`  // 0 to 10
}

// Analyzer is the port to the external natural-language analysis
// collaborator. Implementations may fail or time out; callers must treat
// that as a degraded condition per the pipeline contract.
type Analyzer interface {
	Analyze(ctx context.Context, content string) (*Analysis, error)
}
