package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/source"
)

// fakeHost serves canned data keyed by owner or owner/name.
type fakeHost struct {
	repos   map[string][]source.Repository
	prs     map[string][]source.PullRequest
	details map[string]map[int]source.PullRequestDetail
	history map[string][]source.Commit
	issues  map[string][]source.Issue

	// partial lists pull request numbers the batch query leaves out.
	partial map[int]bool
	// fail returns an error for a call, keyed by "<method> <repo>".
	fail func(call string) error

	calls map[string]int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		repos:   map[string][]source.Repository{},
		prs:     map[string][]source.PullRequest{},
		details: map[string]map[int]source.PullRequestDetail{},
		history: map[string][]source.Commit{},
		issues:  map[string][]source.Issue{},
		partial: map[int]bool{},
		calls:   map[string]int{},
	}
}

func (h *fakeHost) call(method, key string) error {
	name := method + " " + key
	h.calls[name]++
	if h.fail != nil {
		return h.fail(name)
	}
	return nil
}

func offsetPage[T any](items []T, req fetch.PageRequest) fetch.Page[T] {
	per := req.PerPage
	if per <= 0 {
		per = 100
	}
	start := min(req.Page*per, len(items))
	end := min(start+per, len(items))
	return fetch.Page[T]{Items: slices.Clone(items[start:end]), HasMore: end < len(items), Total: len(items)}
}

func (h *fakeHost) ListRepositories(_ context.Context, owner string, req fetch.PageRequest) (fetch.Page[source.Repository], error) {
	if err := h.call("repos", owner); err != nil {
		return fetch.Page[source.Repository]{}, err
	}
	repos, ok := h.repos[owner]
	if !ok {
		return fetch.Page[source.Repository]{}, fmt.Errorf("owner %s: %w", owner, apierr.ErrNotFound)
	}
	return offsetPage(repos, req), nil
}

func (h *fakeHost) ListPullRequests(_ context.Context, repo source.Repository, req fetch.PageRequest) (fetch.Page[source.PullRequest], error) {
	if err := h.call("pulls", repo.FullName()); err != nil {
		return fetch.Page[source.PullRequest]{}, err
	}
	return offsetPage(h.prs[repo.FullName()], req), nil
}

func (h *fakeHost) ListIssues(_ context.Context, repo source.Repository, _ time.Time, req fetch.PageRequest) (fetch.Page[source.Issue], error) {
	if err := h.call("issues", repo.FullName()); err != nil {
		return fetch.Page[source.Issue]{}, err
	}
	return offsetPage(h.issues[repo.FullName()], req), nil
}

func (h *fakeHost) ListCommitHistory(_ context.Context, repo source.Repository, _ time.Time, req fetch.PageRequest) (fetch.Page[source.Commit], error) {
	if err := h.call("history", repo.FullName()); err != nil {
		return fetch.Page[source.Commit]{}, err
	}
	all := h.history[repo.FullName()]
	start := 0
	if req.Cursor != "" {
		start, _ = strconv.Atoi(req.Cursor)
	}
	end := min(start+req.PerPage, len(all))
	page := fetch.Page[source.Commit]{Items: slices.Clone(all[start:end])}
	if end < len(all) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (h *fakeHost) BatchPullRequestDetails(_ context.Context, repo source.Repository, numbers []int) (map[int]source.PullRequestDetail, error) {
	if err := h.call("batch", repo.FullName()); err != nil {
		return nil, err
	}
	out := make(map[int]source.PullRequestDetail)
	missing := false
	for _, n := range numbers {
		d, ok := h.details[repo.FullName()][n]
		if !ok || h.partial[n] {
			missing = true
			continue
		}
		out[n] = d
	}
	if missing {
		return out, fmt.Errorf("batch: %w", apierr.ErrPartialBatch)
	}
	return out, nil
}

func (h *fakeHost) GetPullRequestDetail(_ context.Context, repo source.Repository, number int) (source.PullRequestDetail, error) {
	if err := h.call("detail", repo.FullName()); err != nil {
		return source.PullRequestDetail{}, err
	}
	d, ok := h.details[repo.FullName()][number]
	if !ok {
		return source.PullRequestDetail{}, fmt.Errorf("pull %d: %w", number, apierr.ErrNotFound)
	}
	d.Partial = true
	return d, nil
}

// fakeTracker pages through a fixed issue list. With cursor set it hands
// out continuation tokens instead of honoring page numbers.
type fakeTracker struct {
	name   string
	issues []source.Issue
	cursor bool
	fail   func(page int) error
	calls  map[int]int
	tokens []string
}

func (t *fakeTracker) Name() string {
	return t.name
}

func (t *fakeTracker) Paging() fetch.Style {
	if t.cursor {
		return fetch.StyleCursor
	}
	return fetch.StyleOffset
}

func (t *fakeTracker) SearchIssues(_ context.Context, req fetch.PageRequest) (fetch.Page[source.Issue], error) {
	if t.calls == nil {
		t.calls = map[int]int{}
	}
	t.calls[req.Page]++
	t.tokens = append(t.tokens, req.Cursor)
	if t.fail != nil {
		if err := t.fail(req.Page); err != nil {
			return fetch.Page[source.Issue]{}, err
		}
	}
	if !t.cursor {
		return offsetPage(t.issues, req), nil
	}

	start := 0
	if req.Cursor != "" {
		start, _ = strconv.Atoi(strings.TrimPrefix(req.Cursor, "tok-"))
	}
	end := min(start+req.PerPage, len(t.issues))
	page := fetch.Page[source.Issue]{Items: slices.Clone(t.issues[start:end])}
	if end < len(t.issues) {
		page.HasMore = true
		page.NextCursor = "tok-" + strconv.Itoa(end)
	}
	return page, nil
}
