package dryrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/ingest"
	"github.com/aipulse/toolrank/internal/metrics"
	"github.com/aipulse/toolrank/internal/ranking"
	"github.com/aipulse/toolrank/internal/snapshot"
	"github.com/aipulse/toolrank/internal/tool"
)

var (
	// ErrPreviewNotFound is returned when an apply references a cache key
	// with no stored preview (never created, expired, or discarded).
	ErrPreviewNotFound = errors.New("preview not found or expired")

	// ErrPreviewStale is returned when a cached preview was computed under
	// a different algorithm version than the one now active.
	ErrPreviewStale = errors.New("preview computed under a different algorithm version")

	// ErrContentMismatch is returned when submitted content does not hash
	// to the value recorded with the preview being applied.
	ErrContentMismatch = errors.New("content does not match preview")
)

// Request describes one ingestion submission.
type Request struct {
	// Type is one of the article ingestion types: text, url, preprocessed.
	Type string

	// Input is the article text (text, preprocessed) or the URL to fetch
	// (url).
	Input string

	// Analysis carries the pre-extracted structured analysis for
	// preprocessed submissions. Ignored for other types.
	Analysis *ingest.Analysis

	// ContentHash optionally declares the expected hash of Input. A
	// mismatch rejects the request before any computation.
	ContentHash string

	// CacheKey references a previous preview to reuse on apply. When set,
	// the analysis collaborator is not invoked again.
	CacheKey string

	// Period is the snapshot period label, e.g. "2025-09". Empty derives
	// the period from the current time.
	Period string

	Metadata    article.Metadata
	PerformedBy string
}

// Change reports the projected effect of an ingestion on one tool.
type Change struct {
	ToolID         string  `json:"tool_id"`
	ToolName       string  `json:"tool_name"`
	CurrentScore   float64 `json:"current_score"`
	ProjectedScore float64 `json:"projected_score"`
	ScoreChange    float64 `json:"score_change"`
	CurrentRank    int     `json:"current_rank"` // 0 when previously unranked
	ProjectedRank  int     `json:"projected_rank"`
	RankChange     int     `json:"rank_change"`
}

// Summary aggregates the changes of one ingestion.
type Summary struct {
	ToolsAffected    int     `json:"tools_affected"`
	TotalScoreChange float64 `json:"total_score_change"`
}

// Outcome is the result of a preview or apply. Preview and apply produce
// identical Changes, Summary, and Snapshot for the same content and
// ranking state; only the persistence side effects differ.
type Outcome struct {
	DryRun         bool                   `json:"dry_run"`
	CacheKey       string                 `json:"cache_key"`
	Content        *article.ContentItem   `json:"content"`
	Log            *article.ProcessingLog `json:"log,omitempty"` // nil on preview
	Snapshot       *snapshot.Snapshot     `json:"snapshot"`
	Changes        []Change               `json:"changes"`
	Summary        Summary                `json:"summary"`
	Degraded       bool                   `json:"degraded,omitempty"`
	DegradedReason string                 `json:"degraded_reason,omitempty"`
}

// Coordinator runs ingestion submissions through the analysis pipeline
// and the ranking engine. Preview and apply share one computation path;
// the CommitPort injected at the end is the only difference, so a
// preview is structurally incapable of writing and an apply commits
// exactly what the preview reported.
type Coordinator struct {
	tools     tool.Repository
	snapshots *snapshot.Manager
	pipeline  *ingest.Pipeline
	extractor *ingest.Extractor
	engine    *ranking.Engine
	cache     PreviewCache
	port      CommitPort
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Deps carries the coordinator's collaborators.
type Deps struct {
	Tools     tool.Repository
	Snapshots *snapshot.Manager
	Pipeline  *ingest.Pipeline
	Extractor *ingest.Extractor
	Engine    *ranking.Engine
	Cache     PreviewCache
	Commit    CommitPort
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewCoordinator creates an ingestion coordinator.
func NewCoordinator(d Deps) *Coordinator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		tools:     d.Tools,
		snapshots: d.Snapshots,
		pipeline:  d.Pipeline,
		extractor: d.Extractor,
		engine:    d.Engine,
		cache:     d.Cache,
		port:      d.Commit,
		metrics:   d.Metrics,
		logger:    logger,
		now:       now,
	}
}

// computation is the deterministic intermediate state shared by preview
// and apply: the resolved content and the proposed deltas, before any
// projection against ranking state.
type computation struct {
	content        string
	contentHash    string
	sourceURL      string
	ingestionType  string
	analysis       *ingest.Analysis
	mentions       []article.ToolMention
	deltas         map[string]map[string]float64
	degraded       bool
	degradedReason string
	fromCache      bool
	periodLabel    string
}

// projection is the effect of a computation on the current ranking state.
type projection struct {
	updates  []ToolUpdate
	snapshot *snapshot.Snapshot
	changes  []Change
	summary  Summary
}

// Preview runs the full pipeline without persisting anything and caches
// the computation for a later apply. Repository state is untouched; the
// returned content item exists only in the response.
func (c *Coordinator) Preview(ctx context.Context, req Request) (*Outcome, error) {
	comp, err := c.compute(ctx, req)
	if err != nil {
		return nil, err
	}

	key := CacheKey(comp.content, c.engine.AlgorithmVersion(), c.engine.Weights().Fingerprint())
	if err := c.cache.Put(ctx, key, c.record(comp)); err != nil {
		// A cache failure degrades reuse, not the preview itself.
		c.logger.Warn("failed to cache preview", "error", err)
	}

	proj, err := c.project(ctx, comp)
	if err != nil {
		return nil, err
	}

	item := c.contentItem(comp, req)
	if err := item.Transition(article.StatusPreviewed); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.PreviewsTotal.Inc()
		if comp.degraded {
			c.metrics.DegradedTotal.Inc()
		}
	}
	c.logger.Info("previewed ingestion",
		"cache_key", key,
		"tools_affected", proj.summary.ToolsAffected,
		"degraded", comp.degraded)

	return &Outcome{
		DryRun:         true,
		CacheKey:       key,
		Content:        item,
		Snapshot:       proj.snapshot,
		Changes:        proj.changes,
		Summary:        proj.summary,
		Degraded:       comp.degraded,
		DegradedReason: comp.degradedReason,
	}, nil
}

// Apply runs the pipeline and commits the result atomically: tool score
// updates, the re-published snapshot, the content item, and the
// processing log land together or not at all. When the request carries a
// cache key, the cached preview computation is reused bit-for-bit and
// the analysis collaborator is not consulted again.
//
// Applies are serialized with snapshot publishes; previews are not
// blocked by an in-flight apply.
func (c *Coordinator) Apply(ctx context.Context, req Request) (*Outcome, error) {
	start := c.now()

	c.snapshots.Lock()
	defer c.snapshots.Unlock()

	comp, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	proj, err := c.project(ctx, comp)
	if err != nil {
		return nil, err
	}

	item := c.contentItem(comp, req)
	if comp.fromCache {
		if err := item.Transition(article.StatusPreviewed); err != nil {
			return nil, err
		}
	}
	if err := item.Transition(article.StatusApplied); err != nil {
		return nil, err
	}

	now := c.now()
	log := &article.ProcessingLog{
		ID:            uuid.NewString(),
		ContentID:     item.ID,
		Action:        "apply",
		Status:        "success",
		ToolsAffected: proj.summary.ToolsAffected,
		DurationMs:    now.Sub(start).Milliseconds(),
		PerformedBy:   req.PerformedBy,
		CreatedAt:     now,
	}

	set := &CommitSet{
		Tools:    proj.updates,
		Snapshot: proj.snapshot,
		Content:  item,
		Log:      log,
	}
	if err := c.port.Commit(ctx, set); err != nil {
		if c.metrics != nil {
			c.metrics.AppliesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	proj.snapshot.IsCurrent = true

	if comp.fromCache {
		if err := c.cache.Delete(ctx, req.CacheKey); err != nil {
			c.logger.Warn("failed to invalidate applied preview", "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.AppliesTotal.WithLabelValues("success").Inc()
		c.metrics.PublishesTotal.Inc()
		c.metrics.ApplyDuration.Observe(c.now().Sub(start).Seconds())
		c.metrics.RankedTools.Set(float64(len(proj.snapshot.Entries)))
		if comp.degraded && !comp.fromCache {
			c.metrics.DegradedTotal.Inc()
		}
	}
	c.logger.Info("applied ingestion",
		"content_id", item.ID,
		"period", proj.snapshot.Period,
		"tools_affected", proj.summary.ToolsAffected,
		"from_cache", comp.fromCache)

	return &Outcome{
		DryRun:         false,
		CacheKey:       req.CacheKey,
		Content:        item,
		Log:            log,
		Snapshot:       proj.snapshot,
		Changes:        proj.changes,
		Summary:        proj.summary,
		Degraded:       comp.degraded,
		DegradedReason: comp.degradedReason,
	}, nil
}

// Discard drops a cached preview without touching any stored state. The
// returned content item reflects the terminal discarded status.
func (c *Coordinator) Discard(ctx context.Context, cacheKey string) (*Outcome, error) {
	rec, ok, err := c.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPreviewNotFound
	}
	if err := c.cache.Delete(ctx, cacheKey); err != nil {
		return nil, err
	}

	comp := fromRecord(rec)
	item := c.contentItem(comp, Request{Type: comp.ingestionType})
	if err := item.Transition(article.StatusPreviewed); err != nil {
		return nil, err
	}
	if err := item.Transition(article.StatusDiscarded); err != nil {
		return nil, err
	}

	c.logger.Info("discarded preview", "cache_key", cacheKey)
	return &Outcome{DryRun: true, CacheKey: cacheKey, Content: item}, nil
}

// resolve produces the computation for an apply: from the preview cache
// when a key is given, otherwise freshly.
func (c *Coordinator) resolve(ctx context.Context, req Request) (*computation, error) {
	if req.CacheKey == "" {
		return c.compute(ctx, req)
	}

	rec, ok, err := c.cache.Get(ctx, req.CacheKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPreviewNotFound
	}
	if rec.AlgorithmVersion != c.engine.AlgorithmVersion() {
		return nil, fmt.Errorf("%w: preview %s, active %s",
			ErrPreviewStale, rec.AlgorithmVersion, c.engine.AlgorithmVersion())
	}
	// Content resubmitted alongside a cache key must be the content the
	// preview was computed from.
	if req.Input != "" && req.Type != article.TypeURL && ContentHash(req.Input) != rec.ContentHash {
		return nil, ErrContentMismatch
	}
	if req.ContentHash != "" && req.ContentHash != rec.ContentHash {
		return nil, ErrContentMismatch
	}
	comp := fromRecord(rec)
	comp.periodLabel = req.Period
	return comp, nil
}

// compute resolves content per the request type and runs the analysis
// pipeline. It reads the tool set but writes nothing.
func (c *Coordinator) compute(ctx context.Context, req Request) (*computation, error) {
	comp := &computation{ingestionType: req.Type, periodLabel: req.Period}

	switch req.Type {
	case article.TypeText:
		comp.content = req.Input
	case article.TypeURL:
		content, err := c.extractor.FromURL(ctx, req.Input)
		if err != nil {
			return nil, err
		}
		comp.content = content
		comp.sourceURL = req.Input
	case article.TypePreprocessed:
		if req.Analysis == nil {
			return nil, fmt.Errorf("%w: preprocessed submission without analysis", ingest.ErrMalformedInput)
		}
		comp.content = req.Input
	default:
		return nil, fmt.Errorf("%w: unknown ingestion type %q", ingest.ErrMalformedInput, req.Type)
	}

	comp.contentHash = ContentHash(comp.content)
	if req.ContentHash != "" && req.ContentHash != comp.contentHash {
		return nil, ErrContentMismatch
	}

	tools, err := c.tools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}

	if req.Type == article.TypePreprocessed {
		comp.analysis = req.Analysis
		comp.mentions = ingest.ResolveMentions(req.Analysis.ToolMentions, tools)
		comp.deltas = ingest.AggregateDeltas(comp.mentions, req.Analysis.ImportanceScore)
		return comp, nil
	}

	res, err := c.pipeline.Analyze(ctx, comp.content, tools)
	if err != nil {
		return nil, err
	}
	comp.analysis = res.Analysis
	comp.mentions = res.Mentions
	comp.deltas = res.ProposedDeltas
	comp.degraded = res.Degraded
	comp.degradedReason = res.DegradedReason
	return comp, nil
}

// project applies the proposed deltas to cloned tools, recomputes the
// ranking, and assembles the would-be snapshot and per-tool changes. It
// mutates nothing outside its own clones.
func (c *Coordinator) project(ctx context.Context, comp *computation) (*projection, error) {
	tools, err := c.tools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}

	prior, err := c.snapshots.Repo().GetCurrent(ctx)
	if err != nil && !errors.Is(err, snapshot.ErrNoCurrent) {
		return nil, fmt.Errorf("load current snapshot: %w", err)
	}

	now := c.now()
	before := make(map[string]float64, len(tools))
	names := make(map[string]string, len(tools))
	var updates []ToolUpdate

	for i, t := range tools {
		clone := t.Clone()
		score := c.engine.Score(clone)
		before[t.ID] = score.Overall
		names[t.ID] = t.Name

		if delta, ok := comp.deltas[t.ID]; ok {
			if clone.DeltaScore == nil {
				clone.DeltaScore = make(map[string]float64, len(delta))
			}
			for _, f := range tool.Factors {
				if d, ok := delta[f]; ok && d != 0 {
					clone.DeltaScore[f] += d
				}
			}
			score = c.engine.Score(clone)
			if tool.ApplyScore(clone, score.FactorScores, score.Overall, now) {
				updates = append(updates, ToolUpdate{Tool: clone, Expected: t.CurrentScore.UpdatedAt})
			}
		}
		tools[i] = clone
	}

	ranked := c.engine.Rank(tools)
	period := comp.period(now)
	snap, err := snapshot.Build(period, c.engine.AlgorithmVersion(), ranked, prior, now)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(comp.deltas))
	var total float64
	for id := range comp.deltas {
		entry := snap.EntryFor(id)
		if entry == nil {
			continue
		}
		ch := Change{
			ToolID:         id,
			ToolName:       names[id],
			CurrentScore:   before[id],
			ProjectedScore: entry.Score,
			ScoreChange:    entry.Score - before[id],
			ProjectedRank:  entry.Rank,
		}
		if prior != nil {
			if prev := prior.EntryFor(id); prev != nil {
				ch.CurrentRank = prev.Rank
				ch.RankChange = prev.Rank - entry.Rank
			}
		}
		changes = append(changes, ch)
		total += ch.ScoreChange
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ProjectedRank < changes[j].ProjectedRank })

	return &projection{
		updates:  updates,
		snapshot: snap,
		changes:  changes,
		summary:  Summary{ToolsAffected: len(updates), TotalScoreChange: total},
	}, nil
}

// period picks the snapshot period label for this computation: the
// requested label, or the current month when none was given.
func (comp *computation) period(now time.Time) string {
	if comp.periodLabel != "" {
		return comp.periodLabel
	}
	return now.UTC().Format("2006-01")
}

// contentItem assembles the content record for this computation. The
// item is not persisted here; persistence happens only through the
// commit port.
func (c *Coordinator) contentItem(comp *computation, req Request) *article.ContentItem {
	title := comp.analysis.Title
	if title == "" {
		title = "Untitled submission"
	}
	category := comp.analysis.Category
	if category == "" {
		category = req.Metadata.Category
	}
	return &article.ContentItem{
		ID:            uuid.NewString(),
		Slug:          article.Slugify(title),
		Title:         title,
		Summary:       comp.analysis.Summary,
		Content:       comp.content,
		IngestionType: comp.ingestionType,
		SourceURL:     comp.sourceURL,
		Category:      category,
		Tags:          comp.analysis.Tags,
		Importance:    comp.analysis.ImportanceScore,
		Sentiment:     comp.analysis.OverallSentiment,
		ToolMentions:  comp.mentions,
		Status:        article.StatusDraft,
		Metadata:      req.Metadata,
		CreatedAt:     c.now(),
	}
}

// record converts a computation into its cacheable form.
func (c *Coordinator) record(comp *computation) *PreviewRecord {
	return &PreviewRecord{
		ContentHash:      comp.contentHash,
		Content:          comp.content,
		SourceURL:        comp.sourceURL,
		IngestionType:    comp.ingestionType,
		Analysis:         comp.analysis,
		Mentions:         comp.mentions,
		ProposedDeltas:   comp.deltas,
		Degraded:         comp.degraded,
		DegradedReason:   comp.degradedReason,
		AlgorithmVersion: c.engine.AlgorithmVersion(),
		CreatedAt:        c.now(),
	}
}

// fromRecord restores a computation from its cached form.
func fromRecord(rec *PreviewRecord) *computation {
	return &computation{
		content:        rec.Content,
		contentHash:    rec.ContentHash,
		sourceURL:      rec.SourceURL,
		ingestionType:  rec.IngestionType,
		analysis:       rec.Analysis,
		mentions:       rec.Mentions,
		deltas:         rec.ProposedDeltas,
		degraded:       rec.Degraded,
		degradedReason: rec.DegradedReason,
		fromCache:      true,
	}
}
