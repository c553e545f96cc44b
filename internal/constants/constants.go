// Package constants provides a centralized location for the tunable
// defaults and magic numbers used throughout devexport.
package constants

import "time"

// Snapshot format constants
const (
	// SchemaVersion is written to snapshot metadata. Bump on any
	// incompatible change to the exported document.
	SchemaVersion = "1.2.0"

	// SourceGitHub labels records fetched from the code host.
	SourceGitHub = "github"

	// SourceJira labels records fetched from the issue tracker.
	SourceJira = "jira"
)

// Pagination constants
const (
	// DefaultPageSize is the number of items requested per list page.
	DefaultPageSize = 100

	// DefaultMaxPages caps pages per listing. Zero means unbounded.
	DefaultMaxPages = 0

	// DefaultProgressEvery is the number of pages between progress logs.
	DefaultProgressEvery = 5
)

// Batch resolution constants
const (
	// DefaultBatchSize is the number of aliased sub-queries per GraphQL
	// request. Detail queries pull commits and reviews, so this stays well
	// below the 100-node complexity ceiling.
	DefaultBatchSize = 25

	// DefaultBatchPause is the minimum spacing between batch requests.
	DefaultBatchPause = 250 * time.Millisecond

	// MaxNestedNodes bounds commits and reviews fetched per pull request.
	MaxNestedNodes = 100
)

// Retry constants
const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultNetworkBase is the initial backoff for network and server failures.
	DefaultNetworkBase = 2 * time.Second

	// DefaultRateLimitBase is the initial backoff for rate limit responses.
	DefaultRateLimitBase = 500 * time.Millisecond

	// DefaultMaxDelay caps any single backoff wait.
	DefaultMaxDelay = 60 * time.Second
)

// Rate limiting constants
const (
	// RateLimitLowWatermark is the threshold below which rate limit
	// warnings are logged.
	RateLimitLowWatermark = 100
)

// HTTP constants
const (
	// DefaultHTTPTimeout bounds any single HTTP round trip.
	DefaultHTTPTimeout = 30 * time.Second

	// MaxErrorBodyBytes bounds how much of an error body is kept in messages.
	MaxErrorBodyBytes = 512
)

// Cache TTL constants
const (
	// DetailCacheTTL is the maximum age of cached pull request details
	// before they are considered stale and require re-fetching.
	DetailCacheTTL = 7 * 24 * time.Hour
)

// Checkpoint constants
const (
	// CheckpointVersion is the on-disk checkpoint format version.
	CheckpointVersion = 1

	// DefaultCheckpointFile is the checkpoint file name used when none is configured.
	DefaultCheckpointFile = ".devexport-checkpoint.json"

	// DefaultOutputFile is the snapshot file name used when none is configured.
	DefaultOutputFile = "devexport-snapshot.json"
)
