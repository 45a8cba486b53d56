package tool

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestInMemoryRepositoryUpdateScores tests the optimistic concurrency
// check on score updates.
func TestInMemoryRepositoryUpdateScores(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	t0 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	seed := &Tool{ID: "t1", Category: "code-assistant"}
	seed.CurrentScore.UpdatedAt = t0
	if err := repo.Insert(ctx, seed); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// First writer observes t0 and wins.
	first, _ := repo.GetByID(ctx, "t1")
	first.DeltaScore = map[string]float64{FactorBusinessSentiment: 2}
	first.CurrentScore.UpdatedAt = t0.Add(time.Minute)
	if err := repo.UpdateScores(ctx, first, t0); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// Second writer still holds t0 and must be rejected.
	second, _ := repo.GetByID(ctx, "t1")
	second.DeltaScore = map[string]float64{FactorBusinessSentiment: -3}
	second.CurrentScore.UpdatedAt = t0.Add(2 * time.Minute)
	err := repo.UpdateScores(ctx, second, t0)
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}

	// The losing write left no trace.
	stored, _ := repo.GetByID(ctx, "t1")
	if stored.DeltaScore[FactorBusinessSentiment] != 2 {
		t.Errorf("expected winning delta 2, got %v", stored.DeltaScore[FactorBusinessSentiment])
	}
}

// TestInMemoryRepositoryNotFound tests lookups of missing tools.
func TestInMemoryRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdateScores(ctx, &Tool{ID: "nope"}, time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestInMemoryRepositoryListOrder verifies List returns tools ordered by ID.
func TestInMemoryRepositoryListOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := repo.Insert(ctx, &Tool{ID: id}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	tools, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i, id := range want {
		if tools[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, tools[i].ID)
		}
	}
}

// TestInMemoryRepositoryIsolation verifies reads return copies, not
// shared state.
func TestInMemoryRepositoryIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	if err := repo.Insert(ctx, &Tool{
		ID:            "t1",
		BaselineScore: map[string]float64{FactorInnovation: 60},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _ := repo.GetByID(ctx, "t1")
	got.BaselineScore[FactorInnovation] = 0

	again, _ := repo.GetByID(ctx, "t1")
	if again.BaselineScore[FactorInnovation] != 60 {
		t.Error("mutating a read result leaked into the repository")
	}
}
