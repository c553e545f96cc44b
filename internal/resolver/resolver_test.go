package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/retry"
)

func TestResolveBatches(t *testing.T) {
	var batches [][]int
	batch := func(_ context.Context, ids []int) (map[int]string, error) {
		batches = append(batches, ids)
		out := map[int]string{}
		for _, id := range ids {
			out[id] = fmt.Sprintf("pr-%d", id)
		}
		return out, nil
	}
	single := func(context.Context, int) (string, error) {
		t.Fatal("single lookup should not be used")
		return "", nil
	}

	r := New("details", batch, single, WithBatchSize[int, string](2), WithPause[int, string](0))
	got, stats, err := r.Resolve(context.Background(), []int{1, 2, 3, 4, 5})

	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, batches)
	assert.Equal(t, Stats{Requested: 5, Resolved: 5, Batches: 3}, stats)
}

func TestFailedBatchFallsBackForThatBatchOnly(t *testing.T) {
	batch := func(_ context.Context, ids []int) (map[int]string, error) {
		if ids[0] == 3 {
			return nil, &apierr.StatusError{StatusCode: 502}
		}
		out := map[int]string{}
		for _, id := range ids {
			out[id] = "batch"
		}
		return out, nil
	}
	var singles []int
	single := func(_ context.Context, id int) (string, error) {
		singles = append(singles, id)
		return "single", nil
	}

	r := New("details", batch, single, WithBatchSize[int, string](2), WithPause[int, string](0))
	got, stats, err := r.Resolve(context.Background(), []int{1, 2, 3, 4, 5})

	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, singles)
	assert.Equal(t, map[int]string{1: "batch", 2: "batch", 3: "single", 4: "single", 5: "batch"}, got)
	assert.Equal(t, 2, stats.Fallbacks)
}

func TestPartialBatchKeepsResolvedEntries(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		return map[int]string{1: "batch"}, apierr.ErrPartialBatch
	}
	var singles []int
	single := func(_ context.Context, id int) (string, error) {
		singles = append(singles, id)
		return "single", nil
	}

	got, _, err := New("details", batch, single, WithPause[int, string](0)).Resolve(context.Background(), []int{1, 2})

	require.NoError(t, err)
	assert.Equal(t, []int{2}, singles)
	assert.Equal(t, map[int]string{1: "batch", 2: "single"}, got)
}

func TestMissingIdentifiersAreDropped(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		return map[int]string{1: "a"}, nil
	}
	single := func(context.Context, int) (string, error) {
		return "", errors.New("unused")
	}

	got, stats, err := New("details", batch, single, WithPause[int, string](0)).Resolve(context.Background(), []int{1, 2})

	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "a"}, got)
	assert.Equal(t, 1, stats.Dropped)
	assert.Zero(t, stats.Fallbacks)
}

func TestFailedSingleLookupIsDropped(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		return nil, errors.New("query too complex")
	}
	single := func(_ context.Context, id int) (string, error) {
		if id == 2 {
			return "", &apierr.StatusError{StatusCode: 404}
		}
		return "single", nil
	}

	got, stats, err := New("details", batch, single, WithPause[int, string](0)).Resolve(context.Background(), []int{1, 2})

	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "single"}, got)
	assert.Equal(t, 1, stats.Dropped)
}

func TestAuthFailureAborts(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		return nil, &apierr.StatusError{StatusCode: 401}
	}
	single := func(context.Context, int) (string, error) {
		t.Fatal("auth failure should not fall back")
		return "", nil
	}

	_, _, err := New("details", batch, single, WithPause[int, string](0)).Resolve(context.Background(), []int{1})

	assert.True(t, apierr.IsAuth(err))
}

func TestEmptyInput(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		t.Fatal("no batch expected")
		return nil, nil
	}

	got, stats, err := New[int, string]("details", batch, nil).Resolve(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, stats.Batches)
}

func TestBatchProgress(t *testing.T) {
	batch := func(_ context.Context, ids []int) (map[int]string, error) {
		return map[int]string{}, nil
	}
	var progress [][2]int
	r := New("details", batch, nil,
		WithBatchSize[int, string](1),
		WithPause[int, string](0),
		WithBatchProgress[int, string](func(done, total int) { progress = append(progress, [2]int{done, total}) }),
	)

	_, _, err := r.Resolve(context.Background(), []int{1, 2})

	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
}

func TestExhaustedSingleLookupKeepsSiblings(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		return nil, &apierr.StatusError{StatusCode: 502}
	}
	var tried []int
	single := func(_ context.Context, id int) (string, error) {
		tried = append(tried, id)
		if id == 2 {
			return "", &retry.Error{Op: "pr detail", Outcome: retry.Exhausted, Class: retry.ClassServer, Attempts: 4, Err: &apierr.StatusError{StatusCode: 502}}
		}
		return "ok", nil
	}

	got, stats, err := New("details", batch, single, WithPause[int, string](0)).Resolve(context.Background(), []int{1, 2, 3})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, tried)
	assert.Equal(t, map[int]string{1: "ok", 3: "ok"}, got)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 2, stats.Resolved)
}

func TestAuthFailureInSingleLookupStops(t *testing.T) {
	batch := func(context.Context, []int) (map[int]string, error) {
		return nil, &apierr.StatusError{StatusCode: 502}
	}
	var tried []int
	single := func(_ context.Context, id int) (string, error) {
		tried = append(tried, id)
		return "", &apierr.StatusError{StatusCode: 401}
	}

	_, _, err := New("details", batch, single, WithPause[int, string](0)).Resolve(context.Background(), []int{1, 2})

	assert.True(t, apierr.IsAuth(err))
	assert.Equal(t, []int{1}, tried)
}
