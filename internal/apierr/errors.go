// Package apierr defines the error values remote adapters return so that
// retry and propagation decisions never depend on a particular client library.
package apierr

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

var (
	// ErrNotFound indicates the resource does not exist or is not visible.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates invalid or insufficient credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDisabled indicates the feature is turned off for the scope,
	// for example issues disabled on a repository.
	ErrDisabled = errors.New("feature disabled for scope")

	// ErrPartialBatch indicates a batched query returned data for only
	// some of its sub-queries. Entries that did resolve are still valid.
	ErrPartialBatch = errors.New("partial batch response")
)

// StatusError represents an unsuccessful HTTP response from a remote API.
type StatusError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *StatusError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Is lets errors.Is match a StatusError against the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrDisabled:
		return e.StatusCode == http.StatusGone
	}
	return false
}

// RateLimitError represents a rate limit response with its reset hints.
type RateLimitError struct {
	ResetAt    time.Time
	RetryAfter time.Duration
	Remaining  int
	Limit      int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
	}
	if e.ResetAt.IsZero() {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuth checks if the error indicates an authentication or authorization failure.
// Rate limit responses that arrive as 403 are not auth failures.
func IsAuth(err error) bool {
	if IsRateLimited(err) {
		return false
	}
	return errors.Is(err, ErrUnauthorized)
}

// IsDisabled checks if the error indicates a feature disabled for the scope.
func IsDisabled(err error) bool {
	return errors.Is(err, ErrDisabled)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsServerError checks if the error is a 5xx response.
func IsServerError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 && statusErr.StatusCode <= 599
	}
	return false
}

// IsNetwork checks if the error is a transport failure: resets, refused
// connections, timeouts and truncated bodies. API responses surfaced through
// an *url.Error are not network failures, and neither are url.Errors
// wrapping a bad URL or unsupported scheme.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	for errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err == nil {
			return false
		}
		err = urlErr.Err
	}
	var statusErr *StatusError
	var rateLimitErr *RateLimitError
	if errors.As(err, &statusErr) || errors.As(err, &rateLimitErr) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryAfter returns the server-provided wait hint for a rate limit error.
func RetryAfter(err error, now time.Time) time.Duration {
	var rateLimitErr *RateLimitError
	if !errors.As(err, &rateLimitErr) {
		return 0
	}
	if rateLimitErr.RetryAfter > 0 {
		return rateLimitErr.RetryAfter
	}
	if !rateLimitErr.ResetAt.IsZero() && rateLimitErr.ResetAt.After(now) {
		return rateLimitErr.ResetAt.Sub(now)
	}
	return 0
}

// FromResponse builds an error for a non-success HTTP response, or nil when
// the status is 2xx. body is an already-read, possibly truncated, response body.
func FromResponse(resp *http.Response, body []byte) error {
	if resp == nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.Redacted()
	}

	msg := string(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg, URL: url}
}
