// Package dryrun provides the coordinator that runs the ingestion
// pipeline in preview mode (no persistence) or apply mode (transactional
// persistence), guaranteeing both produce identical computed output.
package dryrun

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/ingest"
)

// DefaultCacheTTL bounds how long a preview result stays reusable.
const DefaultCacheTTL = 24 * time.Hour

// PreviewRecord is the cached computation of a preview, reused verbatim
// by apply so the expensive analysis call happens once and apply is
// guaranteed to commit exactly what preview reported.
type PreviewRecord struct {
	ContentHash      string                        `cbor:"content_hash"`
	Content          string                        `cbor:"content"`
	SourceURL        string                        `cbor:"source_url,omitempty"`
	IngestionType    string                        `cbor:"ingestion_type"`
	Analysis         *ingest.Analysis              `cbor:"analysis"`
	Mentions         []article.ToolMention         `cbor:"mentions,omitempty"`
	ProposedDeltas   map[string]map[string]float64 `cbor:"proposed_deltas"`
	Degraded         bool                          `cbor:"degraded,omitempty"`
	DegradedReason   string                        `cbor:"degraded_reason,omitempty"`
	AlgorithmVersion string                        `cbor:"algorithm_version"`
	CreatedAt        time.Time                     `cbor:"created_at"`
}

// PreviewCache stores preview computations keyed by cache key.
type PreviewCache interface {
	Put(ctx context.Context, key string, rec *PreviewRecord) error
	Get(ctx context.Context, key string) (*PreviewRecord, bool, error)

	// Delete invalidates a cached preview. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// CacheKey derives the content-addressed key for a preview: the content,
// the algorithm version, and the weight fingerprint all participate, so
// any calibration change invalidates cached previews.
func CacheKey(content, algorithmVersion, weightsFingerprint string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(algorithmVersion))
	h.Write([]byte{0})
	h.Write([]byte(weightsFingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the hex SHA-256 of the content alone, recorded in
// preview results and re-verified on apply.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process PreviewCache. Used for testing and
// single-instance deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[string]memoryEntry
}

type memoryEntry struct {
	rec     *PreviewRecord
	expires time.Time
}

// NewMemoryCache creates an in-memory preview cache. A non-positive ttl
// falls back to DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, records: make(map[string]memoryEntry)}
}

// Put stores a preview record.
func (c *MemoryCache) Put(ctx context.Context, key string, rec *PreviewRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = memoryEntry{rec: rec, expires: time.Now().Add(c.ttl)}
	return nil
}

// Get retrieves a preview record if present and unexpired.
func (c *MemoryCache) Get(ctx context.Context, key string) (*PreviewRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.records[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false, nil
	}
	return e.rec, true, nil
}

// Delete invalidates a cached preview.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, key)
	return nil
}

// RedisCache stores preview records in Redis, CBOR-encoded, so multiple
// API instances can apply a preview computed elsewhere.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed preview cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return "toolrank:preview:" + key
}

// Put stores a preview record.
func (c *RedisCache) Put(ctx context.Context, key string, rec *PreviewRecord) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode preview record: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache preview record: %w", err)
	}
	return nil
}

// Get retrieves a preview record.
func (c *RedisCache) Get(ctx context.Context, key string) (*PreviewRecord, bool, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load preview record: %w", err)
	}
	var rec PreviewRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode preview record: %w", err)
	}
	return &rec, true, nil
}

// Delete invalidates a cached preview.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("delete preview record: %w", err)
	}
	return nil
}
