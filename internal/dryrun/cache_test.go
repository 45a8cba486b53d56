package dryrun

import (
	"context"
	"testing"
	"time"

	"github.com/aipulse/toolrank/internal/ingest"
)

// TestCacheKey verifies every input participates in the key, so a change
// to content, algorithm, or calibration invalidates cached previews.
func TestCacheKey(t *testing.T) {
	base := CacheKey("content", "v7.0", "v7.0:0.250000")

	tests := []struct {
		name        string
		content     string
		version     string
		fingerprint string
	}{
		{name: "content changes key", content: "other content", version: "v7.0", fingerprint: "v7.0:0.250000"},
		{name: "version changes key", content: "content", version: "v8.0", fingerprint: "v7.0:0.250000"},
		{name: "fingerprint changes key", content: "content", version: "v7.0", fingerprint: "v7.0:0.300000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheKey(tt.content, tt.version, tt.fingerprint); got == base {
				t.Error("expected a different key")
			}
		})
	}

	if again := CacheKey("content", "v7.0", "v7.0:0.250000"); again != base {
		t.Error("identical inputs must produce identical keys")
	}
}

// TestCacheKeySeparators verifies field boundaries are unambiguous: moving
// bytes between adjacent fields must change the key.
func TestCacheKeySeparators(t *testing.T) {
	a := CacheKey("contentv", "7.0", "fp")
	b := CacheKey("content", "v7.0", "fp")
	if a == b {
		t.Error("expected distinct keys for shifted field boundary")
	}
}

// TestMemoryCache tests put, get, delete, and expiry.
func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	rec := &PreviewRecord{
		ContentHash:      ContentHash("article"),
		Content:          "article",
		IngestionType:    "text",
		Analysis:         &ingest.Analysis{Title: "t"},
		AlgorithmVersion: "v7.0",
		CreatedAt:        time.Now(),
	}

	t.Run("round trip", func(t *testing.T) {
		c := NewMemoryCache(time.Hour)
		if err := c.Put(ctx, "k", rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, ok, err := c.Get(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if got.ContentHash != rec.ContentHash {
			t.Errorf("expected hash %s, got %s", rec.ContentHash, got.ContentHash)
		}
	})

	t.Run("miss", func(t *testing.T) {
		c := NewMemoryCache(time.Hour)
		if _, ok, err := c.Get(ctx, "absent"); ok || err != nil {
			t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		c := NewMemoryCache(time.Hour)
		if err := c.Put(ctx, "k", rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Error("expected miss after delete")
		}
		// Deleting an absent key is not an error.
		if err := c.Delete(ctx, "k"); err != nil {
			t.Errorf("double delete: %v", err)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		c := NewMemoryCache(time.Millisecond)
		if err := c.Put(ctx, "k", rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Error("expected record to expire")
		}
	})
}
