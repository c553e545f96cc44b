// Package cache stores resolved pull request details on disk so repeated
// exports skip detail queries for pull requests that have not changed.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/source"
)

// Key uniquely identifies a pull request in the cache.
type Key struct {
	RepoFullName string
	Number       int
}

// Cacher defines the interface for caching operations.
// This interface enables mocking the cache in unit tests.
type Cacher interface {
	Get(key Key, updatedAt time.Time) (*source.PullRequestDetail, bool)
	Set(key Key, updatedAt time.Time, detail *source.PullRequestDetail) error
	Clear() error
	Stats() (*Stats, error)
}

// Ensure Cache implements Cacher interface.
var _ Cacher = (*Cache)(nil)

// Cache stores pull request details as one JSON file per pull request.
type Cache struct {
	dir string
	now func() time.Time
}

// DefaultDir returns the directory used by NewCache.
func DefaultDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "devexport", "details"), nil
}

// NewCache creates a cache in the user cache directory.
func NewCache() (*Cache, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return NewCacheWithDir(dir)
}

// NewCacheWithDir creates a cache rooted at dir.
func NewCacheWithDir(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// keyString generates a file name for a cache key
func (c *Cache) keyString(key Key) string {
	// Replace slashes with underscores to avoid path issues while preserving uniqueness
	safeName := strings.ReplaceAll(strings.ToLower(key.RepoFullName), "/", "_")
	return fmt.Sprintf("%s_pr_%d.json", safeName, key.Number)
}

// Get retrieves cached details for a pull request. The entry is invalid
// when the pull request was updated after it was cached.
func (c *Cache) Get(key Key, updatedAt time.Time) (*source.PullRequestDetail, bool) {
	if key.Number == 0 {
		return nil, false
	}

	keyStr := c.keyString(key)
	data, err := os.ReadFile(filepath.Join(c.dir, keyStr))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	// Invalidate if cache version doesn't match (format/schema changed)
	if entry.Version != Version {
		log.Debug("cache version mismatch", "cached", entry.Version, "current", Version, "key", keyStr)
		return nil, false
	}

	if updatedAt.After(entry.UpdatedAt) {
		return nil, false
	}

	if c.now().Sub(entry.CachedAt) > constants.DetailCacheTTL {
		return nil, false
	}

	return &entry.Detail, true
}

// Set caches details for a pull request. Partial details from the
// single-item fallback are not cached.
func (c *Cache) Set(key Key, updatedAt time.Time, detail *source.PullRequestDetail) error {
	if key.Number == 0 || detail == nil || detail.Partial {
		return nil
	}

	entry := Entry{
		Detail:    *detail,
		CachedAt:  c.now(),
		UpdatedAt: updatedAt,
		Version:   Version,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(c.dir, c.keyString(key)), data, 0600)
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// Stats returns cache statistics
func (c *Cache) Stats() (*Stats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	now := c.now()

	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		stats.Total++
		stats.Bytes += int64(len(data))

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Version == Version && now.Sub(entry.CachedAt) <= constants.DetailCacheTTL {
			stats.Valid++
		}
	}

	return stats, nil
}
