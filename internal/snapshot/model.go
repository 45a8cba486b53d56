// Package snapshot provides ranking snapshot storage and the period
// manager that owns the single "current snapshot" pointer.
package snapshot

import (
	"errors"
	"fmt"
	"time"
)

// Movement directions for a ranking entry relative to the prior snapshot.
const (
	DirectionUp        = "up"
	DirectionDown      = "down"
	DirectionNew       = "new"
	DirectionUnchanged = "unchanged"
)

// ErrInvariantViolation is returned when a snapshot breaks a structural
// invariant: non-contiguous ranks, scores increasing with rank, or more
// than one current snapshot. These are fatal, never silently tolerated.
var ErrInvariantViolation = errors.New("ranking invariant violation")

// Movement describes how an entry moved relative to the previous current
// snapshot.
type Movement struct {
	// PreviousRank is nil when the tool was absent from the prior snapshot.
	PreviousRank *int `json:"previous_rank"`

	// Delta is previousRank - rank; positive means the tool moved up.
	Delta int `json:"delta"`

	// Direction is one of up, down, new, unchanged.
	Direction string `json:"direction"`
}

// Entry is one position in a published ranking snapshot.
type Entry struct {
	ToolID       string             `json:"tool_id"`
	Rank         int                `json:"rank"`
	Tier         string             `json:"tier"`
	Score        float64            `json:"score"`
	FactorScores map[string]float64 `json:"factor_scores"`
	Movement     Movement           `json:"movement"`
}

// Snapshot is one published ranking result set for a period.
type Snapshot struct {
	ID               string    `json:"id"`
	Period           string    `json:"period"` // e.g. "2025-09"
	AlgorithmVersion string    `json:"algorithm_version"`
	IsCurrent        bool      `json:"is_current"`
	Entries          []Entry   `json:"entries"`
	CreatedAt        time.Time `json:"created_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Entries = make([]Entry, len(s.Entries))
	for i, e := range s.Entries {
		ec := e
		if e.Movement.PreviousRank != nil {
			prev := *e.Movement.PreviousRank
			ec.Movement.PreviousRank = &prev
		}
		if e.FactorScores != nil {
			fs := make(map[string]float64, len(e.FactorScores))
			for k, v := range e.FactorScores {
				fs[k] = v
			}
			ec.FactorScores = fs
		}
		c.Entries[i] = ec
	}
	return &c
}

// EntryFor returns the entry for a tool ID, or nil if absent.
func (s *Snapshot) EntryFor(toolID string) *Entry {
	for i := range s.Entries {
		if s.Entries[i].ToolID == toolID {
			return &s.Entries[i]
		}
	}
	return nil
}

// ValidateEntries checks the structural invariants of the entry list:
// ranks are exactly 1..N with no gaps or duplicates, and scores are
// non-increasing as rank increases.
func (s *Snapshot) ValidateEntries() error {
	for i, e := range s.Entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: rank %d at position %d in snapshot %s",
				ErrInvariantViolation, e.Rank, i, s.Period)
		}
		if i > 0 && e.Score > s.Entries[i-1].Score {
			return fmt.Errorf("%w: score increases from rank %d to %d in snapshot %s",
				ErrInvariantViolation, i, i+1, s.Period)
		}
	}
	return nil
}
