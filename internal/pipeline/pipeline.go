// Package pipeline runs an export: it discovers units of work, processes
// them one at a time with checkpointing after each, and assembles the
// accumulated results into a snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/cache"
	"github.com/spiffcs/devexport/internal/checkpoint"
	"github.com/spiffcs/devexport/internal/classify"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/export"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/metrics"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/retry"
	"github.com/spiffcs/devexport/internal/source"
)

var (
	// ErrAborted is returned when the run stopped before every unit was
	// attempted. The checkpoint is left in place.
	ErrAborted = errors.New("export aborted")

	// ErrAuth is returned when the remote rejected the credentials. No
	// checkpoint write happens after it is detected.
	ErrAuth = errors.New("authentication failed")
)

// Config is the export scope and tuning.
type Config struct {
	Owners          []string
	Repos           []string
	ExcludeRepos    []string
	IncludeForks    bool
	IncludeArchived bool
	IncludeIssues   bool
	Since           time.Time

	PageSize      int
	MaxPages      int
	BatchSize     int
	BatchPause    time.Duration
	ProgressEvery int

	// TrackerScope identifies the tracker query for the checkpoint
	// fingerprint, e.g. its base URL and JQL.
	TrackerScope string
	// TrackerPageSize defaults to PageSize.
	TrackerPageSize int

	// Output is the snapshot path; "-" writes to stdout.
	Output string
	DryRun bool
}

func (c Config) since() *time.Time {
	if c.Since.IsZero() {
		return nil
	}
	s := c.Since.UTC()
	return &s
}

// Result is the outcome of Run. It is returned even when Run fails.
type Result struct {
	Snapshot *model.Snapshot
	Summary  model.RunSummary
	State    checkpoint.State
	// Units lists the planned units on a dry run.
	Units []string
}

// Pipeline exports activity from a code host and an optional tracker.
type Pipeline struct {
	host    source.Host
	tracker source.Tracker
	cfg     Config

	retryOpts  []retry.Option
	policy     *retry.Policy
	checkpoint *checkpoint.Manager
	cache      cache.Cacher
	metrics    *metrics.Recorder
	assembler  *export.Assembler
	bots       *classify.BotDetector
	now        func() time.Time
	stdout     io.Writer
	observer   func(Event)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracker adds an issue tracker whose result pages become units.
func WithTracker(t source.Tracker) Option {
	return func(p *Pipeline) {
		p.tracker = t
	}
}

// WithRetryOptions tunes the retry policy applied to every remote call.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(p *Pipeline) {
		p.retryOpts = append(p.retryOpts, opts...)
	}
}

// WithCheckpoint enables checkpointing through m.
func WithCheckpoint(m *checkpoint.Manager) Option {
	return func(p *Pipeline) {
		p.checkpoint = m
	}
}

// WithCache serves unchanged pull request details from c.
func WithCache(c cache.Cacher) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithMetrics records run metrics to r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = r
	}
}

// WithBots sets the bot detector used for exclusion.
func WithBots(d *classify.BotDetector) Option {
	return func(p *Pipeline) {
		p.bots = d
	}
}

// WithAssembler replaces the snapshot assembler.
func WithAssembler(a *export.Assembler) Option {
	return func(p *Pipeline) {
		p.assembler = a
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithStdout sets where "-" output is written.
func WithStdout(w io.Writer) Option {
	return func(p *Pipeline) {
		p.stdout = w
	}
}

// New creates a Pipeline. host may be nil when only a tracker is exported.
func New(host source.Host, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		host:   host,
		cfg:    cfg,
		bots:   classify.NewBotDetector(),
		now:    time.Now,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.PageSize <= 0 {
		p.cfg.PageSize = constants.DefaultPageSize
	}
	if p.cfg.TrackerPageSize <= 0 {
		p.cfg.TrackerPageSize = p.cfg.PageSize
	}
	if p.cfg.BatchSize <= 0 {
		p.cfg.BatchSize = constants.DefaultBatchSize
	}
	if p.cfg.Output == "" {
		p.cfg.Output = constants.DefaultOutputFile
	}

	retryOpts := append([]retry.Option{retry.WithOnRetry(p.onRetry)}, p.retryOpts...)
	p.policy = retry.NewPolicy(retryOpts...)

	if p.assembler == nil {
		tracker := ""
		if p.tracker != nil {
			tracker = p.tracker.Name()
		}
		p.assembler = export.NewAssembler(
			export.WithScope(p.cfg.Owners, p.cfg.Repos, tracker),
			export.WithSince(p.cfg.since()),
			export.WithBots(p.bots),
			export.WithClock(p.now),
		)
	}
	return p
}

func (p *Pipeline) onRetry(op string, attempt int, class retry.Class, wait time.Duration, err error) {
	log.Warn("retrying", "op", op, "attempt", attempt, "wait", wait, "class", class, "error", err)
	p.metrics.Retry(string(class))
	p.emit(Event{Kind: EventRetry, Unit: op, Done: attempt, Wait: wait, Err: err})
}

func (p *Pipeline) checkpointScope() checkpoint.Scope {
	s := checkpoint.Scope{
		Owners:  p.cfg.Owners,
		Repos:   p.cfg.Repos,
		Tracker: p.cfg.TrackerScope,
	}
	if since := p.cfg.since(); since != nil {
		s.Since = since.Format(time.RFC3339)
	}
	return s
}

// run is the mutable state of one Run invocation.
type run struct {
	*Pipeline
	ctx     context.Context
	scope   checkpoint.Scope
	acc     *accumulator
	skipped []model.SkippedUnit
	total   int
	fetched int
	// keep is set when a skipped unit may succeed on a later attempt.
	keep     bool
	replayed int
	start    time.Time
}

// Run performs the export. The error wraps ErrAuth, ErrAborted or the
// context error when the run did not complete.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.now()
	res := &Result{Summary: model.RunSummary{Output: p.cfg.Output}}

	if p.cfg.DryRun {
		units, skipped, err := p.plan(ctx)
		if err != nil {
			return p.aborted(res, err)
		}
		for _, repo := range units {
			res.Units = append(res.Units, unitID(repo))
		}
		if p.tracker != nil {
			res.Units = append(res.Units, p.tracker.Name())
		}
		res.Summary.Total = len(res.Units) + len(skipped)
		res.Summary.Skipped = skipped
		return res, nil
	}

	r := &run{Pipeline: p, ctx: ctx, scope: p.checkpointScope(), start: start}

	var cp *checkpoint.Checkpoint
	res.State = checkpoint.StateFresh
	if p.checkpoint != nil {
		var err error
		cp, res.State, err = p.checkpoint.Begin(r.scope)
		if err != nil {
			return p.aborted(res, fmt.Errorf("%w: %w", ErrAborted, err))
		}
	}
	r.acc = newAccumulator(cp)
	res.Summary.Resumed = res.State == checkpoint.StateResuming

	repos, skipped, err := p.plan(ctx)
	if err != nil {
		return p.aborted(res, err)
	}
	r.skipped = append(r.skipped, skipped...)
	r.total += len(skipped)
	r.prune(repos)
	p.emit(Event{Kind: EventDiscovered, Total: len(repos)})

	if err := r.exportRepositories(repos); err != nil {
		return r.abort(res, err)
	}
	if p.tracker != nil {
		if err := r.exportTracker(); err != nil {
			return r.abort(res, err)
		}
	}
	log.ProgressDone()

	if r.total == 0 {
		log.Warn("no units in scope, writing an empty snapshot")
	}

	p.emit(Event{Kind: EventWriting, Unit: p.cfg.Output})
	units := r.acc.snapshot()
	snap := p.assembler.Assemble(units, model.UnitStats{
		Total:    r.total,
		Exported: len(units),
		Skipped:  r.skipped,
	})
	if err := export.Write(p.cfg.Output, snap, p.stdout); err != nil {
		return r.abort(res, fmt.Errorf("%w: %w", ErrAborted, err))
	}
	log.Info("snapshot written", "output", p.cfg.Output,
		"pullRequests", snap.Metadata.Counts.PullRequests, "commits", snap.Metadata.Counts.Commits,
		"reviews", snap.Metadata.Counts.Reviews, "issues", snap.Metadata.Counts.Issues)

	if p.checkpoint != nil {
		if r.keep {
			log.Warn("keeping checkpoint so failed units are retried next run", "path", p.checkpoint.Path())
		} else if err := p.checkpoint.Clear(); err != nil {
			log.Warn("could not remove checkpoint", "path", p.checkpoint.Path(), "error", err)
		}
	}
	res.State = checkpoint.StateCompleted

	c := snap.Metadata.Counts
	p.metrics.Records("pull_request", c.PullRequests)
	p.metrics.Records("commit", c.Commits)
	p.metrics.Records("review", c.Reviews)
	p.metrics.Records("issue", c.Issues)
	p.metrics.BotsExcluded(c.BotsExcluded)
	p.metrics.Finish(p.now().Sub(start), true, p.now())

	res.Snapshot = snap
	res.Summary = r.summary(res.Summary)
	res.Summary.Counts = c
	res.Summary.Duration = p.now().Sub(start)
	return res, nil
}

func (r *run) summary(s model.RunSummary) model.RunSummary {
	s.Total = r.total
	s.Completed = r.acc.len()
	s.Replayed = r.replayed
	s.Skipped = r.skipped
	return s
}

func (p *Pipeline) aborted(res *Result, err error) (*Result, error) {
	log.ProgressClear()
	res.Summary.Aborted = true
	res.Summary.Reason = err.Error()
	return res, err
}

func (r *run) abort(res *Result, err error) (*Result, error) {
	res.Summary = r.summary(res.Summary)
	res.Summary.Duration = r.now().Sub(r.start)
	r.metrics.Finish(r.now().Sub(r.start), false, r.now())
	return r.aborted(res, err)
}

// commit records a completed unit and persists the checkpoint before the
// next unit starts.
func (r *run) commit(u model.UnitResult, started time.Time) error {
	r.acc.add(u)
	r.fetched++
	if r.checkpoint != nil {
		if err := r.checkpoint.Save(r.scope, r.acc.snapshot()); err != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}
	r.metrics.Unit("completed", r.now().Sub(started))
	for _, w := range u.Warnings {
		log.Warn(w, "unit", u.Unit)
	}
	log.Debug("unit completed", "unit", u.Unit, "records", u.RecordCount())
	return nil
}

// fail decides what a unit failure means for the run. A nil return means
// the unit was skipped and the run continues.
func (r *run) fail(unit string, err error, started time.Time) error {
	r.metrics.Unit("failed", r.now().Sub(started))

	class := failureClass(err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: interrupted during %s: %w", ErrAborted, unit, err)
	case apierr.IsAuth(err):
		return fmt.Errorf("%w: %s: %w", ErrAuth, unit, err)
	case apierr.IsNotFound(err), apierr.IsDisabled(err):
		r.skip(unit, err, class)
		return nil
	case errors.Is(err, retry.ErrExhausted) && r.fetched == 0:
		return fmt.Errorf("%w: first unit %s failed: %w", ErrAborted, unit, err)
	default:
		r.keep = true
		r.skip(unit, err, class)
		return nil
	}
}

func (r *run) skip(unit string, err error, class retry.Class) {
	log.Warn("skipping unit", "unit", unit, "reason", err, "class", class)
	r.emit(Event{Kind: EventUnitSkipped, Unit: unit, Err: err})
	r.skipped = append(r.skipped, model.SkippedUnit{Unit: unit, Reason: err.Error(), Class: string(class)})
}

func failureClass(err error) retry.Class {
	var re *retry.Error
	if errors.As(err, &re) {
		return re.Class
	}
	_, class := retry.Classify(err)
	return class
}
