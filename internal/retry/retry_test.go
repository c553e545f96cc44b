package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffcs/devexport/internal/apierr"
)

type recordedSleep struct {
	waits []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestPolicy(rec *recordedSleep, opts ...Option) *Policy {
	base := []Option{
		WithNetworkBase(time.Second),
		WithRateLimitBase(100 * time.Millisecond),
		WithMaxDelay(time.Minute),
		WithSleep(rec.sleep),
	}
	return NewPolicy(append(base, opts...)...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
		class   Class
	}{
		{"nil", nil, Success, ClassNone},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), Transient, ClassNetwork},
		{"502", &apierr.StatusError{StatusCode: 502}, Transient, ClassServer},
		{"429", &apierr.StatusError{StatusCode: 429}, Transient, ClassRateLimit},
		{"rate limit", &apierr.RateLimitError{}, Transient, ClassRateLimit},
		{"401", &apierr.StatusError{StatusCode: 401}, Fatal, ClassAuth},
		{"403", &apierr.StatusError{StatusCode: 403}, Fatal, ClassAuth},
		{"404", &apierr.StatusError{StatusCode: 404}, Fatal, ClassNotFound},
		{"410", &apierr.StatusError{StatusCode: 410}, Fatal, ClassDisabled},
		{"422", &apierr.StatusError{StatusCode: 422}, Fatal, ClassOther},
		{"canceled", context.Canceled, Fatal, ClassCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, class := Classify(tt.err)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.class, class)
		})
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Do(context.Background(), "list pulls", func(context.Context) error {
		calls++
		if calls < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Do(context.Background(), "list pulls", func(context.Context) error {
		calls++
		return &apierr.StatusError{StatusCode: 503}
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.waits)

	var retryErr *Error
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, Exhausted, retryErr.Outcome)
	assert.Equal(t, ClassServer, retryErr.Class)
	assert.Equal(t, 4, retryErr.Attempts)
	assert.True(t, apierr.IsServerError(err), "underlying status stays inspectable")
}

func TestDoRateLimitUsesShorterBase(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec, WithMaxRetries(2))

	_ = p.Do(context.Background(), "batch", func(context.Context) error {
		return &apierr.RateLimitError{}
	})

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.waits)
}

func TestDoRateLimitHonorsRetryAfterUpToCap(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec, WithMaxRetries(2), WithMaxDelay(10*time.Second))

	_ = p.Do(context.Background(), "batch", func(context.Context) error {
		return &apierr.RateLimitError{RetryAfter: 30 * time.Second}
	})

	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, rec.waits)
}

func TestDoAuthShortCircuits(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Do(context.Background(), "list repos", func(context.Context) error {
		calls++
		return &apierr.StatusError{StatusCode: 401}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
	assert.True(t, apierr.IsAuth(err))
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestDoNotFoundIsNotRetried(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Do(context.Background(), "get repo", func(context.Context) error {
		calls++
		return &apierr.StatusError{StatusCode: 404}
	})

	assert.True(t, apierr.IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestDoReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	err := p.Do(ctx, "list", func(context.Context) error {
		return syscall.ECONNRESET
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallEmptyResultIsSuccess(t *testing.T) {
	p := newTestPolicy(&recordedSleep{})

	items, err := Call(context.Background(), p, "list", func(context.Context) ([]string, error) {
		return []string{}, nil
	})

	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestOnRetryObserver(t *testing.T) {
	var seen []Class
	p := newTestPolicy(&recordedSleep{}, WithMaxRetries(1), WithOnRetry(func(_ string, attempt int, class Class, _ time.Duration, _ error) {
		assert.Equal(t, 1, attempt)
		seen = append(seen, class)
	}))

	_ = p.Do(context.Background(), "list", func(context.Context) error {
		return syscall.ECONNREFUSED
	})

	assert.Equal(t, []Class{ClassNetwork}, seen)
}
