package snapshot

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when no snapshot matches.
	ErrNotFound = errors.New("snapshot not found")

	// ErrNoCurrent is returned when no snapshot is marked current.
	ErrNoCurrent = errors.New("no current snapshot")
)

// Repository defines the interface for ranking snapshot storage.
// Publish is the only write path that touches the is_current flag; it
// must be atomic so readers never observe zero or multiple current
// snapshots.
type Repository interface {
	// GetCurrent returns the snapshot with is_current = true.
	GetCurrent(ctx context.Context) (*Snapshot, error)

	// GetByPeriod returns the snapshot for a period label.
	GetByPeriod(ctx context.Context, period string) (*Snapshot, error)

	// Publish stores the snapshot and atomically moves the current flag
	// to it: within one transaction every other snapshot is unset and the
	// target is set.
	Publish(ctx context.Context, s *Snapshot) error

	// Count returns the number of stored snapshots.
	Count(ctx context.Context) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. The mutex covers the whole current
// flag swap, so no reader can observe an intermediate state.
type InMemoryRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot // keyed by period
}

// NewInMemoryRepository creates a new in-memory snapshot repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{snapshots: make(map[string]*Snapshot)}
}

// GetCurrent returns the snapshot with is_current = true.
func (r *InMemoryRepository) GetCurrent(ctx context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.snapshots {
		if s.IsCurrent {
			return s.Clone(), nil
		}
	}
	return nil, ErrNoCurrent
}

// GetByPeriod returns the snapshot for a period label.
func (r *InMemoryRepository) GetByPeriod(ctx context.Context, period string) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[period]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Publish stores the snapshot and atomically moves the current flag.
func (r *InMemoryRepository) Publish(ctx context.Context, s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.snapshots {
		existing.IsCurrent = false
	}
	c := s.Clone()
	c.IsCurrent = true
	r.snapshots[c.Period] = c
	return nil
}

// Count returns the number of stored snapshots.
func (r *InMemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots), nil
}

// Periods returns all stored period labels, sorted. Useful in tests.
func (r *InMemoryRepository) Periods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshots))
	for p := range r.snapshots {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
