// Package resolver fetches secondary details for many identifiers using
// batched requests, falling back to one request per identifier for any
// batch that fails.
package resolver

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/retry"
)

// BatchFunc resolves many identifiers in one request. Identifiers absent
// from the returned map were not found. Returning apierr.ErrPartialBatch
// alongside a map keeps the entries it has and falls back for the rest.
type BatchFunc[K comparable, V any] func(ctx context.Context, ids []K) (map[K]V, error)

// SingleFunc resolves one identifier.
type SingleFunc[K comparable, V any] func(ctx context.Context, id K) (V, error)

// Stats reports how a resolution went.
type Stats struct {
	Requested int
	Resolved  int
	Batches   int
	Fallbacks int
	Dropped   int
}

// Resolver runs batches sequentially, spaced by a limiter.
type Resolver[K comparable, V any] struct {
	label     string
	batchSize int
	limiter   *rate.Limiter
	batch     BatchFunc[K, V]
	single    SingleFunc[K, V]
	onBatch   func(done, total int)
}

// Option configures a Resolver.
type Option[K comparable, V any] func(*Resolver[K, V])

// WithBatchSize sets the number of identifiers per batch.
func WithBatchSize[K comparable, V any](n int) Option[K, V] {
	return func(r *Resolver[K, V]) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPause sets the minimum spacing between batch requests.
func WithPause[K comparable, V any](d time.Duration) Option[K, V] {
	return func(r *Resolver[K, V]) {
		r.limiter = newLimiter(d)
	}
}

// WithBatchProgress registers a callback after each batch.
func WithBatchProgress[K comparable, V any](fn func(done, total int)) Option[K, V] {
	return func(r *Resolver[K, V]) {
		r.onBatch = fn
	}
}

// New creates a Resolver.
func New[K comparable, V any](label string, batch BatchFunc[K, V], single SingleFunc[K, V], opts ...Option[K, V]) *Resolver[K, V] {
	r := &Resolver[K, V]{
		label:     label,
		batchSize: constants.DefaultBatchSize,
		limiter:   newLimiter(constants.DefaultBatchPause),
		batch:     batch,
		single:    single,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newLimiter(pause time.Duration) *rate.Limiter {
	if pause <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(pause), 1)
}

// Resolve returns details for every identifier that could be resolved.
// The result may hold fewer entries than ids. Only authentication
// failures and cancellation are returned as errors; any other failure
// drops the affected identifiers.
func (r *Resolver[K, V]) Resolve(ctx context.Context, ids []K) (map[K]V, Stats, error) {
	stats := Stats{Requested: len(ids)}
	out := make(map[K]V, len(ids))
	total := (len(ids) + r.batchSize - 1) / r.batchSize

	for start := 0; start < len(ids); start += r.batchSize {
		chunk := ids[start:min(start+r.batchSize, len(ids))]

		if err := r.limiter.Wait(ctx); err != nil {
			return out, stats, err
		}
		stats.Batches++

		got, err := r.batch(ctx, chunk)
		switch {
		case err == nil:
			for k, v := range got {
				out[k] = v
			}
		case isFatal(err):
			return out, stats, err
		default:
			partial := errors.Is(err, apierr.ErrPartialBatch)
			log.Debug("batch failed, falling back to single lookups",
				"label", r.label, "batch", stats.Batches, "size", len(chunk), "partial", partial, "error", err)

			var missing []K
			for _, id := range chunk {
				if v, ok := got[id]; ok && partial {
					out[id] = v
					continue
				}
				missing = append(missing, id)
			}
			if err := r.fallback(ctx, missing, out, &stats); err != nil {
				return out, stats, err
			}
		}

		if r.onBatch != nil {
			r.onBatch(stats.Batches, total)
		}
	}

	stats.Resolved = len(out)
	stats.Dropped = stats.Requested - stats.Resolved
	return out, stats, nil
}

func (r *Resolver[K, V]) fallback(ctx context.Context, ids []K, out map[K]V, stats *Stats) error {
	for _, id := range ids {
		stats.Fallbacks++
		v, err := r.single(ctx, id)
		if err != nil {
			if isFatal(err) {
				return err
			}
			if errors.Is(err, retry.ErrExhausted) {
				log.Warn("single lookup exhausted retries, dropping", "label", r.label, "id", id, "error", err)
			} else {
				log.Debug("single lookup failed, dropping", "label", r.label, "id", id, "error", err)
			}
			continue
		}
		out[id] = v
	}
	return nil
}

func isFatal(err error) bool {
	return apierr.IsAuth(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
