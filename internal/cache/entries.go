package cache

import (
	"time"

	"github.com/spiffcs/devexport/internal/source"
)

// Version should be incremented when the cache format changes
// or when the detail structure changes to invalidate old entries
const Version = 1

// Entry represents cached pull request details
type Entry struct {
	Detail    source.PullRequestDetail `json:"detail"`
	CachedAt  time.Time                `json:"cachedAt"`
	UpdatedAt time.Time                `json:"updatedAt"` // pull request updatedAt for invalidation
	Version   int                      `json:"version"`   // Cache version for invalidation
}

// Stats contains cache statistics
type Stats struct {
	Total int
	Valid int
	Bytes int64
}
