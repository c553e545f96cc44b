package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/cache"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/reconcile"
	"github.com/spiffcs/devexport/internal/resolver"
	"github.com/spiffcs/devexport/internal/retry"
	"github.com/spiffcs/devexport/internal/source"
)

func (r *run) exportRepositories(repos []source.Repository) error {
	r.total += len(repos)
	for i, repo := range repos {
		unit := unitID(repo)
		if saved, ok := r.acc.get(unit); ok {
			r.replayed++
			log.Debug("replaying unit from checkpoint", "unit", unit)
			r.emit(Event{Kind: EventUnitDone, Unit: unit, Done: i + 1, Total: len(repos), Records: saved.RecordCount(), Replayed: true})
			continue
		}

		log.Progress("Exporting %d/%d %s", i+1, len(repos), repo.FullName())
		r.emit(Event{Kind: EventUnitStarted, Unit: unit, Done: i, Total: len(repos)})
		started := r.now()
		u, err := r.exportRepository(r.ctx, repo)
		if err != nil {
			if err := r.fail(unit, err, started); err != nil {
				return err
			}
			continue
		}
		if err := r.commit(u, started); err != nil {
			return err
		}
		r.emit(Event{Kind: EventUnitDone, Unit: unit, Done: i + 1, Total: len(repos), Records: u.RecordCount()})
	}
	return nil
}

// exportRepository fetches and normalizes everything one repository
// contributes to the snapshot.
func (p *Pipeline) exportRepository(ctx context.Context, repo source.Repository) (model.UnitResult, error) {
	unit := unitID(repo)
	u := model.UnitResult{Unit: unit, Kind: model.UnitRepository, Owner: repo.Owner, Repo: repo.Name}

	prs, err := p.listPullRequests(ctx, repo)
	if err != nil {
		return u, err
	}

	details, dropped, err := p.resolveDetails(ctx, repo, prs)
	if err != nil {
		return u, err
	}
	if len(dropped) > 0 {
		u.Warnings = append(u.Warnings, fmt.Sprintf("details unavailable for %d pull requests in %s: %s",
			len(dropped), repo.FullName(), joinNumbers(dropped)))
	}

	history, err := p.listHistory(ctx, repo)
	if err != nil {
		return u, err
	}

	var issues []source.Issue
	if p.cfg.IncludeIssues {
		issues, err = p.listIssues(ctx, repo)
		switch {
		case err == nil:
		case apierr.IsDisabled(err), apierr.IsNotFound(err):
			u.Warnings = append(u.Warnings, fmt.Sprintf("issues unavailable for %s, exporting none", repo.FullName()))
			issues = nil
		default:
			return u, err
		}
	}

	actors := newActorSet(constants.SourceGitHub)
	var prCommits []model.Commit
	for _, pr := range prs {
		detail, ok := details[pr.Number]
		var dp *source.PullRequestDetail
		if ok {
			dp = &detail
		}
		u.PullRequests = append(u.PullRequests, normalizePullRequest(repo, pr, dp, actors))
		if !ok {
			continue
		}
		prID := prExternalID(pr.Number)
		for _, c := range detail.Commits {
			prCommits = append(prCommits, normalizeCommit(repo, c, &prID, actors))
		}
		for i, rv := range detail.Reviews {
			u.Reviews = append(u.Reviews, normalizeReview(repo, pr.Number, i, rv, actors))
		}
	}

	historyCommits := make([]model.Commit, 0, len(history))
	for _, c := range history {
		historyCommits = append(historyCommits, normalizeCommit(repo, c, nil, actors))
	}
	var stats reconcile.MergeStats
	u.Commits, stats = reconcile.MergeCommits(prCommits, historyCommits)

	for _, is := range issues {
		u.Issues = append(u.Issues, normalizeIssue(constants.SourceGitHub, repo.FullName(), is, actors))
	}
	u.Actors = actors.list()

	log.Info("repository exported", "unit", unit,
		"pullRequests", len(u.PullRequests), "commits", len(u.Commits),
		"directPushes", stats.DirectPushes, "reviews", len(u.Reviews), "issues", len(u.Issues))
	return u, nil
}

// listPullRequests walks pull requests newest-updated first and stops at
// the since boundary.
func (p *Pipeline) listPullRequests(ctx context.Context, repo source.Repository) ([]source.PullRequest, error) {
	since := p.cfg.Since
	list := func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.PullRequest], error) {
		op := fmt.Sprintf("%s: list pull requests page %d", unitID(repo), req.Page)
		return retry.Call(ctx, p.policy, op, func(ctx context.Context) (fetch.Page[source.PullRequest], error) {
			p.metrics.Request("pull_requests")
			return p.host.ListPullRequests(ctx, repo, req)
		})
	}

	opts := []fetch.Option[source.PullRequest]{
		fetch.WithPageSize[source.PullRequest](p.cfg.PageSize),
		fetch.WithMaxPages[source.PullRequest](p.cfg.MaxPages),
		fetch.WithProgressEvery[source.PullRequest](p.cfg.ProgressEvery),
	}
	if !since.IsZero() {
		opts = append(opts, fetch.WithStopWhen(func(items []source.PullRequest) bool {
			return len(items) > 0 && items[len(items)-1].UpdatedAt.Before(since)
		}))
	}

	all, err := fetch.NewOffset("pull requests "+repo.FullName(), list, opts...).Collect(ctx)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return all, nil
	}
	return slices.DeleteFunc(all, func(pr source.PullRequest) bool {
		return pr.UpdatedAt.Before(since)
	}), nil
}

// resolveDetails serves unchanged pull requests from the cache and
// resolves the rest in batches. It also returns the numbers whose details
// could not be resolved.
func (p *Pipeline) resolveDetails(ctx context.Context, repo source.Repository, prs []source.PullRequest) (map[int]source.PullRequestDetail, []int, error) {
	out := make(map[int]source.PullRequestDetail, len(prs))
	updated := make(map[int]time.Time, len(prs))
	var missing []int

	for _, pr := range prs {
		updated[pr.Number] = pr.UpdatedAt
		if p.cache != nil {
			if d, ok := p.cache.Get(cache.Key{RepoFullName: repo.FullName(), Number: pr.Number}, pr.UpdatedAt); ok {
				out[pr.Number] = *d
				p.metrics.CacheHit()
				continue
			}
			p.metrics.CacheMiss()
		}
		missing = append(missing, pr.Number)
	}
	if len(missing) == 0 {
		return out, nil, nil
	}

	unit := unitID(repo)
	batch := func(ctx context.Context, numbers []int) (map[int]source.PullRequestDetail, error) {
		var got map[int]source.PullRequestDetail
		err := p.policy.Do(ctx, fmt.Sprintf("%s: batch details (%d)", unit, len(numbers)), func(ctx context.Context) error {
			p.metrics.Request("batch_details")
			var err error
			got, err = p.host.BatchPullRequestDetails(ctx, repo, numbers)
			return err
		})
		return got, err
	}
	single := func(ctx context.Context, number int) (source.PullRequestDetail, error) {
		return retry.Call(ctx, p.policy, fmt.Sprintf("%s: pull request %d details", unit, number), func(ctx context.Context) (source.PullRequestDetail, error) {
			p.metrics.Request("pull_request_detail")
			return p.host.GetPullRequestDetail(ctx, repo, number)
		})
	}

	opts := []resolver.Option[int, source.PullRequestDetail]{
		resolver.WithBatchSize[int, source.PullRequestDetail](p.cfg.BatchSize),
		resolver.WithBatchProgress[int, source.PullRequestDetail](func(done, total int) {
			log.Progress("Resolving %s details: batch %d/%d", repo.FullName(), done, total)
		}),
	}
	if p.cfg.BatchPause > 0 {
		opts = append(opts, resolver.WithPause[int, source.PullRequestDetail](p.cfg.BatchPause))
	}

	resolved, stats, err := resolver.New("details "+repo.FullName(), batch, single, opts...).Resolve(ctx, missing)
	if err != nil {
		return nil, nil, err
	}
	p.metrics.Fallbacks(stats.Fallbacks)

	var dropped []int
	for _, number := range missing {
		if _, ok := resolved[number]; !ok {
			dropped = append(dropped, number)
		}
	}
	if len(dropped) > 0 {
		log.Warn("pull request details unavailable", "unit", unit, "dropped", stats.Dropped, "numbers", dropped)
	}

	for number, d := range resolved {
		out[number] = d
		if p.cache == nil {
			continue
		}
		if err := p.cache.Set(cache.Key{RepoFullName: repo.FullName(), Number: number}, updated[number], &d); err != nil {
			log.Debug("could not cache details", "repo", repo.FullName(), "number", number, "error", err)
		}
	}
	return out, dropped, nil
}

func joinNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = "#" + strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

func (p *Pipeline) listHistory(ctx context.Context, repo source.Repository) ([]source.Commit, error) {
	list := func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Commit], error) {
		op := fmt.Sprintf("%s: commit history page %d", unitID(repo), req.Page)
		return retry.Call(ctx, p.policy, op, func(ctx context.Context) (fetch.Page[source.Commit], error) {
			p.metrics.Request("history")
			return p.host.ListCommitHistory(ctx, repo, p.cfg.Since, req)
		})
	}
	return fetch.NewCursor("history "+repo.FullName(), list,
		fetch.WithPageSize[source.Commit](p.cfg.PageSize),
		fetch.WithMaxPages[source.Commit](p.cfg.MaxPages),
		fetch.WithProgressEvery[source.Commit](p.cfg.ProgressEvery),
	).Collect(ctx)
}

func (p *Pipeline) listIssues(ctx context.Context, repo source.Repository) ([]source.Issue, error) {
	if !repo.HasIssues {
		return nil, fmt.Errorf("%s: %w", repo.FullName(), apierr.ErrDisabled)
	}
	list := func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Issue], error) {
		op := fmt.Sprintf("%s: list issues page %d", unitID(repo), req.Page)
		return retry.Call(ctx, p.policy, op, func(ctx context.Context) (fetch.Page[source.Issue], error) {
			p.metrics.Request("issues")
			return p.host.ListIssues(ctx, repo, p.cfg.Since, req)
		})
	}
	return fetch.NewOffset("issues "+repo.FullName(), list,
		fetch.WithPageSize[source.Issue](p.cfg.PageSize),
		fetch.WithMaxPages[source.Issue](p.cfg.MaxPages),
		fetch.WithProgressEvery[source.Issue](p.cfg.ProgressEvery),
	).Collect(ctx)
}
