package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offsetSource serves items in pages the way a numbered REST listing does.
func offsetSource(total int, calls *[]PageRequest) PageFunc[int] {
	return func(_ context.Context, req PageRequest) (Page[int], error) {
		*calls = append(*calls, req)
		start := req.Page * req.PerPage
		end := min(start+req.PerPage, total)
		var items []int
		for i := start; i < end; i++ {
			items = append(items, i)
		}
		return Page[int]{Items: items, HasMore: end < total}, nil
	}
}

func TestOffsetCollectsAllPages(t *testing.T) {
	var calls []PageRequest
	p := NewOffset("pulls", offsetSource(25, &calls), WithPageSize[int](10))

	items, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 25)
	assert.Len(t, calls, 3)
	assert.Equal(t, 2, calls[2].Page)
}

func TestOffsetStopsOnShortPage(t *testing.T) {
	var calls []PageRequest
	fetch := func(_ context.Context, req PageRequest) (Page[int], error) {
		calls = append(calls, req)
		// Claims more but returns a short page.
		return Page[int]{Items: []int{1, 2}, HasMore: true}, nil
	}

	items, err := NewOffset("issues", fetch, WithPageSize[int](10)).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)
	assert.Len(t, calls, 1)
}

func TestOffsetFilteredPageContinues(t *testing.T) {
	var calls []PageRequest
	fetch := func(_ context.Context, req PageRequest) (Page[int], error) {
		calls = append(calls, req)
		if req.Page == 0 {
			// Ten entries came back, eight were filtered out by the adapter.
			return Page[int]{Items: []int{1, 2}, HasMore: true, Raw: 10}, nil
		}
		return Page[int]{Items: []int{3}, HasMore: false, Raw: 1}, nil
	}

	items, err := NewOffset("issues", fetch, WithPageSize[int](10)).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, items)
	assert.Len(t, calls, 2)
}

func TestPageCap(t *testing.T) {
	var calls []PageRequest
	p := NewOffset("pulls", offsetSource(1000, &calls), WithPageSize[int](10), WithMaxPages[int](3))

	items, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 30)
	assert.Len(t, calls, 3)
}

func TestEmptyFirstPageIsYielded(t *testing.T) {
	fetch := func(context.Context, PageRequest) (Page[string], error) {
		return Page[string]{}, nil
	}

	var pages int
	for page, err := range NewCursor("history", fetch).Pages(context.Background()) {
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		pages++
	}
	assert.Equal(t, 1, pages)

	items, err := NewCursor("history", fetch).Collect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCursorFollowsContinuation(t *testing.T) {
	cursors := map[string]Page[string]{
		"":   {Items: []string{"a", "b"}, HasMore: true, NextCursor: "c1"},
		"c1": {Items: []string{"c"}, HasMore: true, NextCursor: "c2"},
		"c2": {Items: []string{"d"}, HasMore: false, NextCursor: "c3"},
	}
	var seen []string
	fetch := func(_ context.Context, req PageRequest) (Page[string], error) {
		seen = append(seen, req.Cursor)
		return cursors[req.Cursor], nil
	}

	items, err := NewCursor("history", fetch, WithPageSize[string](2)).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, items)
	assert.Equal(t, []string{"", "c1", "c2"}, seen)
}

func TestCursorStopsOnEmptyCursor(t *testing.T) {
	calls := 0
	fetch := func(context.Context, PageRequest) (Page[string], error) {
		calls++
		return Page[string]{Items: []string{"x"}, HasMore: true}, nil
	}

	_, err := NewCursor("history", fetch).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestStopWhen(t *testing.T) {
	var calls []PageRequest
	p := NewOffset("pulls", offsetSource(100, &calls),
		WithPageSize[int](10),
		WithStopWhen(func(items []int) bool { return items[len(items)-1] >= 25 }),
	)

	items, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 30)
}

func TestStartPage(t *testing.T) {
	var calls []PageRequest
	p := NewOffset("tracker", offsetSource(30, &calls), WithPageSize[int](10), WithStartPage[int](2))

	var numbers []int
	for page, err := range p.Pages(context.Background()) {
		require.NoError(t, err)
		numbers = append(numbers, page.Number)
	}

	assert.Equal(t, []int{2}, numbers)
}

func TestStartCursor(t *testing.T) {
	cursors := map[string]Page[string]{
		"c1": {Items: []string{"c"}, HasMore: true, NextCursor: "c2"},
		"c2": {Items: []string{"d"}},
	}
	var seen []string
	fetch := func(_ context.Context, req PageRequest) (Page[string], error) {
		seen = append(seen, req.Cursor)
		return cursors[req.Cursor], nil
	}
	p := NewCursor("tracker", fetch, WithStartPage[string](1), WithStartCursor[string]("c1"))

	var numbers []int
	for page, err := range p.Pages(context.Background()) {
		require.NoError(t, err)
		numbers = append(numbers, page.Number)
	}

	assert.Equal(t, []string{"c1", "c2"}, seen)
	assert.Equal(t, []int{1, 2}, numbers)
}

func TestErrorEndsWalk(t *testing.T) {
	boom := errors.New("exhausted")
	calls := 0
	fetch := func(_ context.Context, req PageRequest) (Page[int], error) {
		calls++
		if req.Page == 1 {
			return Page[int]{}, boom
		}
		return Page[int]{Items: make([]int, 10), HasMore: true}, nil
	}

	items, err := NewOffset("pulls", fetch, WithPageSize[int](10)).Collect(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, items)
	assert.Equal(t, 2, calls)
}

func TestProgressCallback(t *testing.T) {
	var calls []PageRequest
	var reports [][2]int
	p := NewOffset("pulls", offsetSource(50, &calls),
		WithPageSize[int](10),
		WithProgressEvery[int](2),
		WithProgress[int](func(pages, items int) { reports = append(reports, [2]int{pages, items}) }),
	)

	_, err := p.Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][2]int{{2, 20}, {4, 40}}, reports)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []PageRequest
	_, err := NewOffset("pulls", offsetSource(10, &calls)).Collect(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}
