package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/aipulse/toolrank/internal/metricsource"
	"github.com/aipulse/toolrank/internal/tool"
)

// DefaultCollectInterval is how often metric collection runs when no
// interval is configured.
const DefaultCollectInterval = 6 * time.Hour

// Collector periodically pulls raw metrics from the configured sources
// and folds them into tool baseline scores. Baseline changes take effect
// at the next publish or apply; the collector never touches current
// scores or snapshots.
type Collector struct {
	tools    tool.Repository
	sources  []metricsource.Source
	interval time.Duration
	metrics  *Metrics
	logger   *slog.Logger
}

// NewCollector creates a metric collector. A non-positive interval falls
// back to DefaultCollectInterval; nil metrics disables instrumentation.
func NewCollector(tools tool.Repository, sources []metricsource.Source, interval time.Duration, m *Metrics, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		tools:    tools,
		sources:  sources,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Run collects immediately and then on every interval tick until the
// context is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// RunOnce performs a single collection pass and reports how many tool
// baselines were updated.
func (c *Collector) RunOnce(ctx context.Context) (int, error) {
	tools, err := c.tools.List(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(tools))
	byID := make(map[string]*tool.Tool, len(tools))
	for i, t := range tools {
		ids[i] = t.ID
		byID[t.ID] = t
	}

	// Later sources win on overlap, so order sources from least to most
	// authoritative.
	merged := make(map[string]map[string]float64)
	for _, src := range c.sources {
		snaps, err := src.Collect(ctx, ids)
		if err != nil {
			c.logger.Warn("metric source failed, continuing with the rest",
				"source", src.Name(),
				"error", err)
			if c.metrics != nil {
				c.metrics.IncJobErrors(JobTypeMetricCollection, "source_error")
			}
			continue
		}
		for _, snap := range snaps {
			if merged[snap.ToolID] == nil {
				merged[snap.ToolID] = make(map[string]float64, len(snap.Metrics))
			}
			for k, v := range snap.Metrics {
				merged[snap.ToolID][k] = v
			}
		}
	}

	updated := 0
	for id, metrics := range merged {
		t, ok := byID[id]
		if !ok {
			continue
		}
		baseline := metricsource.ApplyToBaseline(t.BaselineScore, metrics)
		if err := c.tools.UpdateBaseline(ctx, id, baseline); err != nil {
			c.logger.Error("failed to update tool baseline", "tool_id", id, "error", err)
			if c.metrics != nil {
				c.metrics.IncJobErrors(JobTypeMetricCollection, "update_error")
			}
			continue
		}
		updated++
	}
	return updated, nil
}

func (c *Collector) collect(ctx context.Context) {
	start := time.Now()
	updated, err := c.RunOnce(ctx)

	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		c.logger.Error("metric collection failed", "error", err)
	} else {
		c.logger.Info("metric collection finished",
			"updated", updated,
			"duration_ms", time.Since(start).Milliseconds())
	}
	if c.metrics != nil {
		c.metrics.IncJobsTotal(JobTypeMetricCollection, status)
		c.metrics.ObserveJobDuration(JobTypeMetricCollection, time.Since(start).Seconds())
	}
}
