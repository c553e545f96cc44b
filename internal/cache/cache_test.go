package cache

import (
	"testing"
	"time"

	"github.com/spiffcs/devexport/internal/source"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCacheWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewCacheWithDir failed: %v", err)
	}
	return c
}

func intPtr(i int) *int { return &i }

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)
	key := Key{RepoFullName: "acme/api", Number: 7}
	updated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	detail := &source.PullRequestDetail{
		Number:    7,
		Additions: intPtr(10),
		Commits:   []source.Commit{{SHA: "abc"}},
	}

	if err := c.Set(key, updated, detail); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get(key, updated)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Number != 7 || len(got.Commits) != 1 || *got.Additions != 10 {
		t.Errorf("unexpected cached detail: %+v", got)
	}
}

func TestGetInvalidatedByNewerUpdate(t *testing.T) {
	c := newTestCache(t)
	key := Key{RepoFullName: "acme/api", Number: 7}
	updated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := c.Set(key, updated, &source.PullRequestDetail{Number: 7}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := c.Get(key, updated.Add(time.Minute)); ok {
		t.Error("expected miss for a pull request updated after caching")
	}
}

func TestGetExpiredByTTL(t *testing.T) {
	c := newTestCache(t)
	key := Key{RepoFullName: "acme/api", Number: 7}
	updated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	c.now = func() time.Time { return updated }
	if err := c.Set(key, updated, &source.PullRequestDetail{Number: 7}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	c.now = func() time.Time { return updated.Add(30 * 24 * time.Hour) }
	if _, ok := c.Get(key, updated); ok {
		t.Error("expected miss for an expired entry")
	}
}

func TestPartialDetailsAreNotCached(t *testing.T) {
	c := newTestCache(t)
	key := Key{RepoFullName: "acme/api", Number: 8}
	updated := time.Now()

	if err := c.Set(key, updated, &source.PullRequestDetail{Number: 8, Partial: true}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get(key, updated); ok {
		t.Error("partial details should not be cached")
	}
}

func TestStatsAndClear(t *testing.T) {
	c := newTestCache(t)
	updated := time.Now()
	for i := 1; i <= 3; i++ {
		if err := c.Set(Key{RepoFullName: "acme/api", Number: i}, updated, &source.PullRequestDetail{Number: i}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Valid != 3 {
		t.Errorf("expected 3 total/3 valid, got %d/%d", stats.Total, stats.Valid)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	stats, err = c.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("expected empty cache after Clear, got %d", stats.Total)
	}
}
