// Package retry classifies remote call outcomes and retries transient
// failures with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/constants"
)

// ErrExhausted is matched by errors.Is when every retry of a transient
// failure has been used.
var ErrExhausted = errors.New("retries exhausted")

// Outcome is the terminal classification of a remote call.
type Outcome int

const (
	Success Outcome = iota
	Transient
	Fatal
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Class refines an Outcome with the failure kind.
type Class string

const (
	ClassNone      Class = ""
	ClassNetwork   Class = "network"
	ClassServer    Class = "server"
	ClassRateLimit Class = "rate_limit"
	ClassAuth      Class = "auth"
	ClassNotFound  Class = "not_found"
	ClassDisabled  Class = "disabled"
	ClassCanceled  Class = "canceled"
	ClassOther     Class = "other"
)

// Classify maps an error returned by a remote call to its outcome.
// Unknown errors are fatal: retrying a malformed request cannot help.
func Classify(err error) (Outcome, Class) {
	switch {
	case err == nil:
		return Success, ClassNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Fatal, ClassCanceled
	case apierr.IsRateLimited(err):
		return Transient, ClassRateLimit
	case apierr.IsAuth(err):
		return Fatal, ClassAuth
	case apierr.IsNotFound(err):
		return Fatal, ClassNotFound
	case apierr.IsDisabled(err):
		return Fatal, ClassDisabled
	case apierr.IsServerError(err):
		return Transient, ClassServer
	case apierr.IsNetwork(err):
		return Transient, ClassNetwork
	default:
		return Fatal, ClassOther
	}
}

// Error is the terminal failure of a retried operation.
type Error struct {
	Op       string
	Outcome  Outcome
	Class    Class
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Outcome == Exhausted {
		return fmt.Sprintf("%s: %s failure after %d attempts: %v", e.Op, e.Class, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports exhaustion so callers can test errors.Is(err, ErrExhausted).
func (e *Error) Is(target error) bool {
	return target == ErrExhausted && e.Outcome == Exhausted
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryFunc observes a scheduled retry.
type RetryFunc func(op string, attempt int, class Class, wait time.Duration, err error)

// Policy retries transient failures with base*2^attempt backoff.
// Network and server failures use NetworkBase; rate limits use the shorter
// RateLimitBase and honor a larger server hint, always capped at MaxDelay.
type Policy struct {
	MaxRetries    int
	NetworkBase   time.Duration
	RateLimitBase time.Duration
	MaxDelay      time.Duration

	sleep   SleepFunc
	onRetry RetryFunc
	now     func() time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(p *Policy) {
		p.MaxRetries = n
	}
}

// WithNetworkBase sets the initial backoff for network and server failures.
func WithNetworkBase(d time.Duration) Option {
	return func(p *Policy) {
		p.NetworkBase = d
	}
}

// WithRateLimitBase sets the initial backoff for rate limit responses.
func WithRateLimitBase(d time.Duration) Option {
	return func(p *Policy) {
		p.RateLimitBase = d
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithSleep replaces the wait function. Tests use this to avoid real sleeps.
func WithSleep(fn SleepFunc) Option {
	return func(p *Policy) {
		p.sleep = fn
	}
}

// WithOnRetry registers an observer for scheduled retries.
func WithOnRetry(fn RetryFunc) Option {
	return func(p *Policy) {
		p.onRetry = fn
	}
}

// NewPolicy creates a Policy with defaults and applies any provided options.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		MaxRetries:    constants.DefaultMaxRetries,
		NetworkBase:   constants.DefaultNetworkBase,
		RateLimitBase: constants.DefaultRateLimitBase,
		MaxDelay:      constants.DefaultMaxDelay,
		sleep:         sleepContext,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Delay returns the wait before retry number attempt (zero-based).
func (p *Policy) Delay(class Class, attempt int, err error) time.Duration {
	base := p.NetworkBase
	if class == ClassRateLimit {
		base = p.RateLimitBase
	}

	d := base << uint(attempt)
	if d < base {
		d = p.MaxDelay
	}
	if class == ClassRateLimit {
		if hint := apierr.RetryAfter(err, p.now()); hint > d {
			d = hint
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails fatally, or exhausts the retry budget.
// Cancellation of ctx is returned as-is.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		outcome, class := Classify(err)
		switch outcome {
		case Success:
			return nil
		case Fatal:
			if class == ClassCanceled {
				return err
			}
			return &Error{Op: op, Outcome: Fatal, Class: class, Attempts: attempt + 1, Err: err}
		}

		if attempt >= p.MaxRetries {
			return &Error{Op: op, Outcome: Exhausted, Class: class, Attempts: attempt + 1, Err: err}
		}

		wait := p.Delay(class, attempt, err)
		if p.onRetry != nil {
			p.onRetry(op, attempt+1, class, wait, err)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Call is Do for operations that return a value. A successful call with
// zero items returns the empty value and a nil error.
func Call[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
