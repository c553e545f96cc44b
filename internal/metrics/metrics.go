// Package metrics records export run counters and writes them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "devexport"

// Recorder holds the metrics of one export run. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	retries      *prometheus.CounterVec
	units        *prometheus.CounterVec
	records      *prometheus.CounterVec
	fallbacks    prometheus.Counter
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	botsExcluded prometheus.Counter
	unitDuration prometheus.Histogram
	runDuration  prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "api_requests_total", Help: "Remote calls by operation kind.",
	}, []string{"kind"})
	r.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "retries_total", Help: "Scheduled retries by failure class.",
	}, []string{"class"})
	r.units = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "units_total", Help: "Units of work by outcome.",
	}, []string{"outcome"})
	r.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "records_exported_total", Help: "Exported records by kind.",
	}, []string{"kind"})
	r.fallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "batch_fallbacks_total", Help: "Single-item lookups after failed batches.",
	})
	r.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "detail_cache_hits_total", Help: "Pull request details served from cache.",
	})
	r.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "detail_cache_misses_total", Help: "Pull request details fetched remotely.",
	})
	r.botsExcluded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "bot_records_excluded_total", Help: "Records dropped because a bot authored them.",
	})
	r.unitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "unit_duration_seconds", Help: "Time to process one unit of work.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
	r.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "run_duration_seconds", Help: "Wall time of the last run.",
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "last_success_timestamp_seconds", Help: "Unix time of the last completed run.",
	})

	r.registry.MustRegister(
		r.requests, r.retries, r.units, r.records,
		r.fallbacks, r.cacheHits, r.cacheMisses, r.botsExcluded,
		r.unitDuration, r.runDuration, r.lastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Request(kind string) {
	if r != nil {
		r.requests.WithLabelValues(kind).Inc()
	}
}

func (r *Recorder) Retry(class string) {
	if r != nil {
		r.retries.WithLabelValues(class).Inc()
	}
}

// Unit records a finished unit. outcome is completed, replayed or skipped.
func (r *Recorder) Unit(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.units.WithLabelValues(outcome).Inc()
	if d > 0 {
		r.unitDuration.Observe(d.Seconds())
	}
}

func (r *Recorder) Records(kind string, n int) {
	if r != nil && n > 0 {
		r.records.WithLabelValues(kind).Add(float64(n))
	}
}

func (r *Recorder) Fallbacks(n int) {
	if r != nil && n > 0 {
		r.fallbacks.Add(float64(n))
	}
}

func (r *Recorder) CacheHit() {
	if r != nil {
		r.cacheHits.Inc()
	}
}

func (r *Recorder) CacheMiss() {
	if r != nil {
		r.cacheMisses.Inc()
	}
}

func (r *Recorder) BotsExcluded(n int) {
	if r != nil && n > 0 {
		r.botsExcluded.Add(float64(n))
	}
}

// Finish records run wall time, and the success timestamp when completed.
func (r *Recorder) Finish(d time.Duration, completed bool, now time.Time) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
	if completed {
		r.lastSuccess.Set(float64(now.Unix()))
	}
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
