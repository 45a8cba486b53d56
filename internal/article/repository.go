package article

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content item not found")

// Repository defines the interface for content item and processing log
// storage. Processing logs are append-only: there is no update or delete.
type Repository interface {
	// InsertContent stores a content item. The slug must be unique; the
	// implementation disambiguates collisions.
	InsertContent(ctx context.Context, c *ContentItem) error

	// GetContent retrieves a content item by ID.
	GetContent(ctx context.Context, id string) (*ContentItem, error)

	// ListContentSince returns applied content items created at or after
	// the given time, newest first.
	ListContentSince(ctx context.Context, since time.Time) ([]*ContentItem, error)

	// AppendLog appends a processing log record.
	AppendLog(ctx context.Context, l *ProcessingLog) error

	// ContentCount returns the number of stored content items.
	ContentCount(ctx context.Context) (int, error)

	// LogCount returns the number of stored processing log records.
	LogCount(ctx context.Context) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	content map[string]*ContentItem
	slugs   map[string]bool
	logs    []*ProcessingLog
}

// NewInMemoryRepository creates a new in-memory article repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		content: make(map[string]*ContentItem),
		slugs:   make(map[string]bool),
	}
}

// InsertContent stores a content item, disambiguating slug collisions
// with a numeric suffix.
func (r *InMemoryRepository) InsertContent(ctx context.Context, c *ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	slug := nextFreeSlug(c.Slug, r.slugs)
	c.Slug = slug
	r.slugs[slug] = true
	stored := *c
	r.content[c.ID] = &stored
	return nil
}

// GetContent retrieves a content item by ID.
func (r *InMemoryRepository) GetContent(ctx context.Context, id string) (*ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.content[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

// ListContentSince returns applied content items created at or after the
// given time, newest first.
func (r *InMemoryRepository) ListContentSince(ctx context.Context, since time.Time) ([]*ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ContentItem
	for _, c := range r.content {
		if c.Status != StatusApplied || c.CreatedAt.Before(since) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AppendLog appends a processing log record.
func (r *InMemoryRepository) AppendLog(ctx context.Context, l *ProcessingLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *l
	r.logs = append(r.logs, &stored)
	return nil
}

// ContentCount returns the number of stored content items.
func (r *InMemoryRepository) ContentCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.content), nil
}

// LogCount returns the number of stored processing log records.
func (r *InMemoryRepository) LogCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs), nil
}
