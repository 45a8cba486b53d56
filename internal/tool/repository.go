package tool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a tool does not exist.
	ErrNotFound = errors.New("tool not found")

	// ErrConcurrentUpdate is returned when an optimistic score update
	// observes a ScoreUpdatedAt different from the expected one. Two
	// articles mentioning the same tool must not overwrite each other.
	ErrConcurrentUpdate = errors.New("tool scores changed concurrently")
)

// Repository defines the interface for tool data operations.
type Repository interface {
	// GetByID retrieves a tool by its ID.
	GetByID(ctx context.Context, id string) (*Tool, error)

	// List returns all tools ordered by ID.
	List(ctx context.Context) ([]*Tool, error)

	// Insert stores a new tool.
	Insert(ctx context.Context, t *Tool) error

	// UpdateScores persists delta and current scores for a tool. The
	// update only succeeds if the stored ScoreUpdatedAt equals expected;
	// otherwise ErrConcurrentUpdate is returned and nothing is written.
	UpdateScores(ctx context.Context, t *Tool, expected time.Time) error

	// UpdateBaseline replaces a tool's baseline factor scores. Baselines
	// feed the next publish or apply; the cached current score is left
	// alone here.
	UpdateBaseline(ctx context.Context, id string, baseline map[string]float64) error

	// Count returns the number of stored tools. Used to verify that
	// preview operations perform zero writes.
	Count(ctx context.Context) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewInMemoryRepository creates a new in-memory tool repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{tools: make(map[string]*Tool)}
}

// GetByID retrieves a tool by its ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// List returns all tools ordered by ID.
func (r *InMemoryRepository) List(ctx context.Context) ([]*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Insert stores a new tool.
func (r *InMemoryRepository) Insert(ctx context.Context, t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID] = t.Clone()
	return nil
}

// UpdateScores persists delta and current scores with an optimistic check
// on ScoreUpdatedAt.
func (r *InMemoryRepository) UpdateScores(ctx context.Context, t *Tool, expected time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tools[t.ID]
	if !ok {
		return ErrNotFound
	}
	if !stored.CurrentScore.UpdatedAt.Equal(expected) {
		return ErrConcurrentUpdate
	}
	stored.DeltaScore = copyFactorMap(t.DeltaScore)
	stored.CurrentScore = t.CurrentScore
	stored.CurrentScore.Factors = copyFactorMap(t.CurrentScore.Factors)
	return nil
}

// UpdateBaseline replaces a tool's baseline factor scores.
func (r *InMemoryRepository) UpdateBaseline(ctx context.Context, id string, baseline map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tools[id]
	if !ok {
		return ErrNotFound
	}
	stored.BaselineScore = copyFactorMap(baseline)
	return nil
}

// Count returns the number of stored tools.
func (r *InMemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools), nil
}
