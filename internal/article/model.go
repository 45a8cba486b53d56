// Package article provides content item and processing log models for
// the article-driven recalculation pipeline.
package article

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Processing statuses for a content item. Applied and Discarded are
// terminal; Applied is the only status that may correspond to persisted
// processing log or ranking writes.
const (
	StatusDraft     = "draft"
	StatusPreviewed = "previewed"
	StatusApplied   = "applied"
	StatusDiscarded = "discarded"
)

// Ingestion types for submitted content.
const (
	TypeText         = "text"
	TypeURL          = "url"
	TypePreprocessed = "preprocessed"
)

// ErrInvalidTransition is returned for a disallowed status change.
var ErrInvalidTransition = errors.New("invalid content status transition")

// Metadata carries operator-supplied context for a submission.
type Metadata struct {
	Author   string   `json:"author,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ToolMention is one extracted reference to a tool within an article.
type ToolMention struct {
	ToolID    string  `json:"tool_id"`
	Tool      string  `json:"tool"`
	Context   string  `json:"context,omitempty"`
	Sentiment float64 `json:"sentiment"` // -1 to 1
	Relevance float64 `json:"relevance"` // 0 to 1
}

// ContentItem is a submitted article with its extracted analysis.
type ContentItem struct {
	ID            string        `json:"id"`
	Slug          string        `json:"slug"`
	Title         string        `json:"title"`
	Summary       string        `json:"summary,omitempty"`
	Content       string        `json:"content"`
	IngestionType string        `json:"ingestion_type"`
	SourceURL     string        `json:"source_url,omitempty"`
	Category      string        `json:"category,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Importance    float64       `json:"importance_score"` // 0 to 10
	Sentiment     float64       `json:"sentiment_score"`  // -1 to 1
	ToolMentions  []ToolMention `json:"tool_mentions,omitempty"`
	Status        string        `json:"status"`
	Metadata      Metadata      `json:"metadata"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Transition moves the item to a new status, enforcing the state machine
// Draft -> Previewed -> {Applied | Discarded}. Draft may also go straight
// to Applied (fresh apply without a prior preview) or Discarded.
func (c *ContentItem) Transition(to string) error {
	allowed := map[string][]string{
		StatusDraft:     {StatusPreviewed, StatusApplied, StatusDiscarded},
		StatusPreviewed: {StatusApplied, StatusDiscarded},
	}
	for _, next := range allowed[c.Status] {
		if next == to {
			c.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
}

// ProcessingLog is an append-only audit record, written only when an
// ingestion is applied, never on preview.
type ProcessingLog struct {
	ID            string    `json:"id"`
	ContentID     string    `json:"content_id"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	ToolsAffected int       `json:"tools_affected"`
	DurationMs    int64     `json:"duration_ms"`
	PerformedBy   string    `json:"performed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a title.
func Slugify(title string) string {
	s := slugCleaner.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

// nextFreeSlug disambiguates a slug against the taken set with a numeric
// suffix: base, then base-2, base-3, and so on.
func nextFreeSlug(base string, taken map[string]bool) string {
	slug := base
	for i := 2; taken[slug]; i++ {
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return slug
}
