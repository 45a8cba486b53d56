package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aipulse/toolrank/internal/ranking"
)

// Manager owns the set of ranking snapshots over time. It is the single
// authoritative entry point for moving the current-snapshot pointer;
// nothing else mutates the is_current flag.
type Manager struct {
	repo   Repository
	logger *slog.Logger

	// mu serializes publish operations. Only one publish/apply may be in
	// flight against the snapshot set at a time (§ concurrency model);
	// previews never take this lock.
	mu sync.Mutex
}

// NewManager creates a snapshot period manager.
func NewManager(repo Repository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, logger: logger}
}

// Current returns the currently published snapshot, or ErrNoCurrent.
func (m *Manager) Current(ctx context.Context) (*Snapshot, error) {
	return m.repo.GetCurrent(ctx)
}

// Build assembles an unpublished snapshot from a computed ranking,
// populating movement relative to the given prior snapshot (nil when
// there is none, e.g. the very first period). The ranked list is assumed
// ordered; entries are validated before the snapshot is returned.
func Build(period, algorithmVersion string, ranked []ranking.RankedTool, prior *Snapshot, now time.Time) (*Snapshot, error) {
	s := &Snapshot{
		ID:               uuid.NewString(),
		Period:           period,
		AlgorithmVersion: algorithmVersion,
		Entries:          make([]Entry, len(ranked)),
		CreatedAt:        now,
	}
	for i, rt := range ranked {
		s.Entries[i] = Entry{
			ToolID:       rt.ToolID,
			Rank:         rt.Rank,
			Tier:         rt.Tier,
			Score:        rt.Score,
			FactorScores: rt.FactorScores,
			Movement:     ComputeMovement(rt.Rank, rt.ToolID, prior),
		}
	}
	if err := s.ValidateEntries(); err != nil {
		return nil, err
	}
	return s, nil
}

// ComputeMovement looks up the tool in the prior snapshot and derives the
// movement record. Absent tools are "new" with a nil previous rank;
// otherwise delta = previousRank - rank, positive meaning upward.
func ComputeMovement(rank int, toolID string, prior *Snapshot) Movement {
	if prior == nil {
		return Movement{Direction: DirectionNew}
	}
	prev := prior.EntryFor(toolID)
	if prev == nil {
		return Movement{Direction: DirectionNew}
	}
	previousRank := prev.Rank
	delta := previousRank - rank
	direction := DirectionUnchanged
	if delta > 0 {
		direction = DirectionUp
	} else if delta < 0 {
		direction = DirectionDown
	}
	return Movement{
		PreviousRank: &previousRank,
		Delta:        delta,
		Direction:    direction,
	}
}

// Publish builds a snapshot for the period from the ranked list and
// atomically promotes it to current. Movement is computed against the
// snapshot that is current at publish time. Publishes are serialized:
// concurrent calls queue rather than interleave rank computation.
func (m *Manager) Publish(ctx context.Context, period, algorithmVersion string, ranked []ranking.RankedTool, now time.Time) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior, err := m.repo.GetCurrent(ctx)
	if err != nil && !errors.Is(err, ErrNoCurrent) {
		return nil, fmt.Errorf("load current snapshot: %w", err)
	}

	s, err := Build(period, algorithmVersion, ranked, prior, now)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Publish(ctx, s); err != nil {
		return nil, fmt.Errorf("publish snapshot %s: %w", period, err)
	}
	s.IsCurrent = true

	m.logger.Info("published ranking snapshot",
		"period", period,
		"algorithm_version", algorithmVersion,
		"entries", len(s.Entries))
	return s, nil
}

// Lock acquires the publish serialization lock for callers that need to
// publish as part of a larger atomic operation (apply). Unlock must be
// called when done.
func (m *Manager) Lock() { m.mu.Lock() }

// Unlock releases the publish serialization lock.
func (m *Manager) Unlock() { m.mu.Unlock() }

// Repo exposes the underlying repository for read paths.
func (m *Manager) Repo() Repository { return m.repo }
