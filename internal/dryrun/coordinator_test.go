package dryrun

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/ingest"
	"github.com/aipulse/toolrank/internal/ranking"
	"github.com/aipulse/toolrank/internal/snapshot"
	"github.com/aipulse/toolrank/internal/tool"
)

// stubAnalyzer returns a fixed analysis and counts invocations, so tests
// can prove the collaborator is not consulted twice for a cached apply.
type stubAnalyzer struct {
	analysis *ingest.Analysis
	err      error
	calls    int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, content string) (*ingest.Analysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

func happyAnalysis() *ingest.Analysis {
	return &ingest.Analysis{
		Title:   "Agents everywhere",
		Summary: "Cursor up, Copilot down.",
		ToolMentions: []ingest.Mention{
			{Tool: "Cursor", Sentiment: 0.8, Relevance: 1.0},
			{Tool: "GitHub Copilot", Sentiment: -0.5, Relevance: 0.5},
		},
		OverallSentiment: 0.2,
		ImportanceScore:  8,
	}
}

type fixture struct {
	coordinator *Coordinator
	tools       *tool.InMemoryRepository
	snapshots   *snapshot.InMemoryRepository
	articles    *article.InMemoryRepository
	cache       *MemoryCache
	analyzer    *stubAnalyzer
	clock       time.Time
}

func newFixture(t *testing.T, analyzer *stubAnalyzer) *fixture {
	t.Helper()
	ctx := context.Background()

	tools := tool.NewInMemoryRepository()
	seed := []*tool.Tool{
		{ID: "tool-cursor", Slug: "cursor", Name: "Cursor", Category: "ide-assistant", Status: tool.StatusActive},
		{ID: "tool-copilot", Slug: "github-copilot", Name: "GitHub Copilot", Category: "code-assistant", Status: tool.StatusActive},
		{ID: "tool-devin", Slug: "devin", Name: "Devin", Category: "autonomous-agent", Status: tool.StatusActive},
	}
	for _, tl := range seed {
		if err := tools.Insert(ctx, tl); err != nil {
			t.Fatalf("seed tool %s: %v", tl.ID, err)
		}
	}

	snapshots := snapshot.NewInMemoryRepository()
	articles := article.NewInMemoryRepository()
	cache := NewMemoryCache(time.Hour)
	clock := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

	coordinator := NewCoordinator(Deps{
		Tools:     tools,
		Snapshots: snapshot.NewManager(snapshots, nil),
		Pipeline:  ingest.NewPipeline(analyzer, nil),
		Extractor: ingest.NewExtractor(time.Second),
		Engine:    ranking.NewEngine(nil, nil),
		Cache:     cache,
		Commit:    &RepoCommit{Tools: tools, Snapshots: snapshots, Articles: articles},
		Now:       func() time.Time { return clock },
	})

	return &fixture{
		coordinator: coordinator,
		tools:       tools,
		snapshots:   snapshots,
		articles:    articles,
		cache:       cache,
		analyzer:    analyzer,
		clock:       clock,
	}
}

func (f *fixture) assertNothingPersisted(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if n, _ := f.snapshots.Count(ctx); n != 0 {
		t.Errorf("expected 0 snapshots, got %d", n)
	}
	if n, _ := f.articles.ContentCount(ctx); n != 0 {
		t.Errorf("expected 0 content items, got %d", n)
	}
	if n, _ := f.articles.LogCount(ctx); n != 0 {
		t.Errorf("expected 0 log records, got %d", n)
	}
	for _, id := range []string{"tool-cursor", "tool-copilot", "tool-devin"} {
		stored, err := f.tools.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !stored.CurrentScore.UpdatedAt.IsZero() {
			t.Errorf("tool %s score was written: %+v", id, stored.CurrentScore)
		}
	}
}

// TestPreviewDoesNotWrite verifies a preview computes a full projection
// while leaving every repository untouched.
func TestPreviewDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	out, err := f.coordinator.Preview(ctx, Request{Type: article.TypeText, Input: "cursor article"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	if !out.DryRun {
		t.Error("expected DryRun = true")
	}
	if out.CacheKey == "" {
		t.Error("expected a cache key")
	}
	if out.Log != nil {
		t.Error("preview must not produce a processing log")
	}
	if out.Content.Status != article.StatusPreviewed {
		t.Errorf("expected previewed content, got %s", out.Content.Status)
	}
	if len(out.Snapshot.Entries) != 3 {
		t.Errorf("expected 3 snapshot entries, got %d", len(out.Snapshot.Entries))
	}
	if out.Summary.ToolsAffected != 2 {
		t.Errorf("expected 2 tools affected, got %d", out.Summary.ToolsAffected)
	}
	if len(out.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(out.Changes))
	}
	for _, ch := range out.Changes {
		switch ch.ToolID {
		case "tool-cursor":
			if ch.ScoreChange <= 0 {
				t.Errorf("expected cursor score to rise, got %+v", ch)
			}
		case "tool-copilot":
			if ch.ScoreChange >= 0 {
				t.Errorf("expected copilot score to fall, got %+v", ch)
			}
		default:
			t.Errorf("unexpected change for %s", ch.ToolID)
		}
	}

	f.assertNothingPersisted(t)
}

// TestPreviewIdempotent verifies two previews of identical content
// produce the same cache key and the same projection, with no repository
// drift between the calls.
func TestPreviewIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})
	req := Request{Type: article.TypeText, Input: "cursor article"}

	first, err := f.coordinator.Preview(ctx, req)
	if err != nil {
		t.Fatalf("first preview: %v", err)
	}
	second, err := f.coordinator.Preview(ctx, req)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}

	if first.CacheKey != second.CacheKey {
		t.Errorf("cache keys diverged: %s vs %s", first.CacheKey, second.CacheKey)
	}
	if !reflect.DeepEqual(first.Changes, second.Changes) {
		t.Errorf("proposed changes diverged:\nfirst:  %+v\nsecond: %+v", first.Changes, second.Changes)
	}
	if !reflect.DeepEqual(first.Snapshot.Entries, second.Snapshot.Entries) {
		t.Error("projected snapshot entries diverged")
	}
	if first.Summary != second.Summary {
		t.Errorf("summaries diverged: %+v vs %+v", first.Summary, second.Summary)
	}

	f.assertNothingPersisted(t)
}

// TestPreviewThenApply verifies the preview-apply round trip: the cached
// computation is reused without a second analysis call, the projected
// changes match the preview exactly, and every record lands.
func TestPreviewThenApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	previewed, err := f.coordinator.Preview(ctx, Request{Type: article.TypeText, Input: "cursor article"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if f.analyzer.calls != 1 {
		t.Fatalf("expected 1 analyzer call after preview, got %d", f.analyzer.calls)
	}

	applied, err := f.coordinator.Apply(ctx, Request{
		Type:        article.TypeText,
		CacheKey:    previewed.CacheKey,
		PerformedBy: "reviewer@example.com",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if f.analyzer.calls != 1 {
		t.Errorf("apply re-invoked the analyzer: %d calls", f.analyzer.calls)
	}
	if applied.DryRun {
		t.Error("expected DryRun = false")
	}
	if !reflect.DeepEqual(previewed.Changes, applied.Changes) {
		t.Errorf("apply changes differ from preview:\npreview: %+v\napply:   %+v", previewed.Changes, applied.Changes)
	}
	if !reflect.DeepEqual(previewed.Snapshot.Entries, applied.Snapshot.Entries) {
		t.Error("apply snapshot entries differ from preview")
	}
	if previewed.Summary != applied.Summary {
		t.Errorf("summaries differ: %+v vs %+v", previewed.Summary, applied.Summary)
	}

	// Everything persisted together.
	current, err := f.snapshots.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("current snapshot: %v", err)
	}
	if current.Period != "2025-09" {
		t.Errorf("expected period 2025-09, got %s", current.Period)
	}
	cursor, err := f.tools.GetByID(ctx, "tool-cursor")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	entry := current.EntryFor("tool-cursor")
	if cursor.CurrentScore.Overall != entry.Score {
		t.Errorf("stored score %v does not match snapshot entry %v", cursor.CurrentScore.Overall, entry.Score)
	}
	if !cursor.CurrentScore.UpdatedAt.Equal(f.clock) {
		t.Errorf("expected score timestamp %v, got %v", f.clock, cursor.CurrentScore.UpdatedAt)
	}
	if n, _ := f.articles.ContentCount(ctx); n != 1 {
		t.Errorf("expected 1 content item, got %d", n)
	}
	if n, _ := f.articles.LogCount(ctx); n != 1 {
		t.Errorf("expected 1 log record, got %d", n)
	}
	if applied.Content.Status != article.StatusApplied {
		t.Errorf("expected applied content, got %s", applied.Content.Status)
	}
	if applied.Log == nil || applied.Log.Action != "apply" || applied.Log.PerformedBy != "reviewer@example.com" {
		t.Errorf("unexpected log record %+v", applied.Log)
	}

	// The applied preview is no longer reusable.
	if _, ok, _ := f.cache.Get(ctx, previewed.CacheKey); ok {
		t.Error("expected applied preview to be evicted from cache")
	}
	if _, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, CacheKey: previewed.CacheKey}); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("expected ErrPreviewNotFound on replay, got %v", err)
	}
}

// TestApplyFresh verifies an apply without a cache key runs the full
// pipeline itself.
func TestApplyFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	out, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, Input: "cursor article"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.analyzer.calls != 1 {
		t.Errorf("expected 1 analyzer call, got %d", f.analyzer.calls)
	}
	if out.Summary.ToolsAffected != 2 {
		t.Errorf("expected 2 tools affected, got %d", out.Summary.ToolsAffected)
	}
	if _, err := f.snapshots.GetCurrent(ctx); err != nil {
		t.Errorf("expected a current snapshot: %v", err)
	}
}

// TestApplyRejectsTamperedContent verifies content submitted alongside a
// cache key must hash to the previewed content.
func TestApplyRejectsTamperedContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	previewed, err := f.coordinator.Preview(ctx, Request{Type: article.TypeText, Input: "original article"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	t.Run("different input", func(t *testing.T) {
		_, err := f.coordinator.Apply(ctx, Request{
			Type:     article.TypeText,
			Input:    "edited article",
			CacheKey: previewed.CacheKey,
		})
		if !errors.Is(err, ErrContentMismatch) {
			t.Errorf("expected ErrContentMismatch, got %v", err)
		}
	})

	t.Run("wrong declared hash", func(t *testing.T) {
		_, err := f.coordinator.Apply(ctx, Request{
			Type:        article.TypeText,
			CacheKey:    previewed.CacheKey,
			ContentHash: ContentHash("something else"),
		})
		if !errors.Is(err, ErrContentMismatch) {
			t.Errorf("expected ErrContentMismatch, got %v", err)
		}
	})

	// Both rejections happen before any write.
	f.assertNothingPersisted(t)
}

// TestApplyRejectsStalePreview verifies a preview recorded under a
// different algorithm version cannot be applied.
func TestApplyRejectsStalePreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	rec := &PreviewRecord{
		ContentHash:      ContentHash("old article"),
		Content:          "old article",
		IngestionType:    article.TypeText,
		Analysis:         happyAnalysis(),
		ProposedDeltas:   map[string]map[string]float64{},
		AlgorithmVersion: "v6.0",
		CreatedAt:        f.clock,
	}
	if err := f.cache.Put(ctx, "stale-key", rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, CacheKey: "stale-key"}); !errors.Is(err, ErrPreviewStale) {
		t.Errorf("expected ErrPreviewStale, got %v", err)
	}
	f.assertNothingPersisted(t)
}

// TestApplyUnknownCacheKey verifies applying a never-previewed key fails
// cleanly.
func TestApplyUnknownCacheKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	if _, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, CacheKey: "no-such-key"}); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("expected ErrPreviewNotFound, got %v", err)
	}
	f.assertNothingPersisted(t)
}

// TestDiscard verifies discarding a preview invalidates the cache without
// touching stored state.
func TestDiscard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	previewed, err := f.coordinator.Preview(ctx, Request{Type: article.TypeText, Input: "cursor article"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	out, err := f.coordinator.Discard(ctx, previewed.CacheKey)
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if out.Content.Status != article.StatusDiscarded {
		t.Errorf("expected discarded content, got %s", out.Content.Status)
	}

	if _, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, CacheKey: previewed.CacheKey}); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("expected ErrPreviewNotFound after discard, got %v", err)
	}
	if _, err := f.coordinator.Discard(ctx, previewed.CacheKey); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("expected ErrPreviewNotFound on double discard, got %v", err)
	}
	f.assertNothingPersisted(t)
}

// TestApplyDegraded verifies an apply still succeeds when the analysis
// collaborator is down: no tool moves, but the article is recorded and
// the snapshot republished.
func TestApplyDegraded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{err: ingest.ErrAnalyzerUnavailable})

	out, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, Input: "cursor article"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !out.Degraded {
		t.Error("expected degraded outcome")
	}
	if out.Summary.ToolsAffected != 0 {
		t.Errorf("expected no tools affected, got %d", out.Summary.ToolsAffected)
	}
	if len(out.Snapshot.Entries) != 3 {
		t.Errorf("expected full snapshot despite degradation, got %d entries", len(out.Snapshot.Entries))
	}
	if n, _ := f.articles.ContentCount(ctx); n != 1 {
		t.Errorf("expected content recorded, got %d items", n)
	}
}

// TestPreviewPreprocessed verifies preprocessed submissions skip the
// collaborator entirely.
func TestPreviewPreprocessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	out, err := f.coordinator.Preview(ctx, Request{
		Type:     article.TypePreprocessed,
		Input:    "raw article body",
		Analysis: happyAnalysis(),
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if f.analyzer.calls != 0 {
		t.Errorf("preprocessed preview invoked the analyzer %d times", f.analyzer.calls)
	}
	if out.Summary.ToolsAffected != 2 {
		t.Errorf("expected 2 tools affected, got %d", out.Summary.ToolsAffected)
	}
}

// TestPreviewInvalidRequests tests input validation ahead of any
// computation.
func TestPreviewInvalidRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{
			name: "unknown type",
			req:  Request{Type: "carrier-pigeon", Input: "text"},
			want: ingest.ErrMalformedInput,
		},
		{
			name: "preprocessed without analysis",
			req:  Request{Type: article.TypePreprocessed, Input: "text"},
			want: ingest.ErrMalformedInput,
		},
		{
			name: "empty text",
			req:  Request{Type: article.TypeText, Input: "   "},
			want: ingest.ErrMalformedInput,
		},
		{
			name: "declared hash mismatch",
			req:  Request{Type: article.TypeText, Input: "text", ContentHash: "deadbeef"},
			want: ErrContentMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.coordinator.Preview(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	f.assertNothingPersisted(t)
}

// TestApplyHonorsRequestedPeriod verifies an explicit period label wins
// over the clock-derived one.
func TestApplyHonorsRequestedPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAnalyzer{analysis: happyAnalysis()})

	out, err := f.coordinator.Apply(ctx, Request{Type: article.TypeText, Input: "cursor article", Period: "2025-12"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Snapshot.Period != "2025-12" {
		t.Errorf("expected period 2025-12, got %s", out.Snapshot.Period)
	}
}
