package metricsource

import (
	"context"
	"time"

	"github.com/aipulse/toolrank/internal/article"
)

// DefaultMentionWindow is how far back the article source looks for
// mentions when no window is configured.
const DefaultMentionWindow = 30 * 24 * time.Hour

// ArticleSource derives news-mention counts from applied content items.
// Every resolved mention in an applied article within the window counts
// as one news mention for that tool.
type ArticleSource struct {
	articles article.Repository
	window   time.Duration
	now      func() time.Time
}

// NewArticleSource creates a mention-count source over the article store.
// A non-positive window falls back to DefaultMentionWindow.
func NewArticleSource(articles article.Repository, window time.Duration) *ArticleSource {
	if window <= 0 {
		window = DefaultMentionWindow
	}
	return &ArticleSource{articles: articles, window: window, now: time.Now}
}

// Name identifies the source.
func (s *ArticleSource) Name() string { return "articles" }

// Collect counts recent mentions per requested tool.
func (s *ArticleSource) Collect(ctx context.Context, toolIDs []string) ([]Snapshot, error) {
	now := s.now()
	items, err := s.articles.ListContentSince(ctx, now.Add(-s.window))
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(toolIDs))
	for _, id := range toolIDs {
		want[id] = true
	}

	counts := make(map[string]float64)
	for _, item := range items {
		for _, m := range item.ToolMentions {
			if want[m.ToolID] {
				counts[m.ToolID]++
			}
		}
	}

	out := make([]Snapshot, 0, len(counts))
	for id, n := range counts {
		out = append(out, Snapshot{
			ToolID:      id,
			Source:      s.Name(),
			Metrics:     map[string]float64{MetricNewsMentions: n},
			CollectedAt: now,
		})
	}
	return out, nil
}
