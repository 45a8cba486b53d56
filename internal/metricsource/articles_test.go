package metricsource

import (
	"context"
	"testing"
	"time"

	"github.com/aipulse/toolrank/internal/article"
)

// TestArticleSourceCollect verifies mention counting over applied
// content within the window.
func TestArticleSourceCollect(t *testing.T) {
	ctx := context.Background()
	repo := article.NewInMemoryRepository()
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)

	items := []*article.ContentItem{
		{
			ID: "c1", Slug: "one", Status: article.StatusApplied,
			CreatedAt: now.Add(-24 * time.Hour),
			ToolMentions: []article.ToolMention{
				{ToolID: "tool-cursor"},
				{ToolID: "tool-copilot"},
			},
		},
		{
			ID: "c2", Slug: "two", Status: article.StatusApplied,
			CreatedAt:    now.Add(-48 * time.Hour),
			ToolMentions: []article.ToolMention{{ToolID: "tool-cursor"}},
		},
		{
			// Outside the window.
			ID: "c3", Slug: "three", Status: article.StatusApplied,
			CreatedAt:    now.Add(-40 * 24 * time.Hour),
			ToolMentions: []article.ToolMention{{ToolID: "tool-cursor"}},
		},
		{
			// Previewed only, never applied.
			ID: "c4", Slug: "four", Status: article.StatusPreviewed,
			CreatedAt:    now.Add(-24 * time.Hour),
			ToolMentions: []article.ToolMention{{ToolID: "tool-cursor"}},
		},
	}
	for _, c := range items {
		if err := repo.InsertContent(ctx, c); err != nil {
			t.Fatalf("insert %s: %v", c.ID, err)
		}
	}

	src := NewArticleSource(repo, 30*24*time.Hour)
	src.now = func() time.Time { return now }

	snaps, err := src.Collect(ctx, []string{"tool-cursor", "tool-copilot"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	byTool := make(map[string]float64)
	for _, s := range snaps {
		byTool[s.ToolID] = s.Metrics[MetricNewsMentions]
	}
	if byTool["tool-cursor"] != 2 {
		t.Errorf("expected 2 cursor mentions, got %v", byTool["tool-cursor"])
	}
	if byTool["tool-copilot"] != 1 {
		t.Errorf("expected 1 copilot mention, got %v", byTool["tool-copilot"])
	}
}
