package ghclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/source"
)

type ownerKind int

const (
	ownerUnknown ownerKind = iota
	ownerOrg
	ownerUser
)

func listOptions(req fetch.PageRequest) gh.ListOptions {
	perPage := req.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = constants.DefaultPageSize
	}
	// go-github pages are 1-based.
	return gh.ListOptions{Page: req.Page + 1, PerPage: perPage}
}

// ListRepositories lists one page of an owner's repositories. Owners are
// tried as organizations first and remembered as users on 404.
func (c *Client) ListRepositories(ctx context.Context, owner string, req fetch.PageRequest) (fetch.Page[source.Repository], error) {
	c.mu.Lock()
	kind := c.ownerKinds[owner]
	c.mu.Unlock()

	var (
		repos []*gh.Repository
		resp  *gh.Response
		err   error
	)
	if kind != ownerUser {
		repos, resp, err = c.rest.Repositories.ListByOrg(ctx, owner, &gh.RepositoryListByOrgOptions{
			Type:        "all",
			Sort:        "full_name",
			ListOptions: listOptions(req),
		})
		if err == nil {
			c.setOwnerKind(owner, ownerOrg)
		} else if apierr.IsNotFound(err) && kind == ownerUnknown {
			log.Debug("owner is not an organization, listing as user", "owner", owner)
			c.setOwnerKind(owner, ownerUser)
			kind = ownerUser
		} else {
			return fetch.Page[source.Repository]{}, fmt.Errorf("list repositories for %s: %w", owner, err)
		}
	}
	if kind == ownerUser {
		repos, resp, err = c.rest.Repositories.List(ctx, owner, &gh.RepositoryListOptions{
			Type:        "owner",
			Sort:        "full_name",
			ListOptions: listOptions(req),
		})
		if err != nil {
			return fetch.Page[source.Repository]{}, fmt.Errorf("list repositories for %s: %w", owner, err)
		}
	}

	items := make([]source.Repository, 0, len(repos))
	for _, r := range repos {
		items = append(items, toRepository(r))
	}
	return fetch.Page[source.Repository]{Items: items, HasMore: resp.NextPage != 0}, nil
}

func (c *Client) setOwnerKind(owner string, kind ownerKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerKinds[owner] = kind
}

// ListPullRequests lists one page of pull requests in every state, most
// recently updated first.
func (c *Client) ListPullRequests(ctx context.Context, repo source.Repository, req fetch.PageRequest) (fetch.Page[source.PullRequest], error) {
	prs, resp, err := c.rest.PullRequests.List(ctx, repo.Owner, repo.Name, &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: listOptions(req),
	})
	if err != nil {
		return fetch.Page[source.PullRequest]{}, fmt.Errorf("list pull requests for %s: %w", repo.FullName(), err)
	}

	items := make([]source.PullRequest, 0, len(prs))
	for _, pr := range prs {
		items = append(items, toPullRequest(pr))
	}
	return fetch.Page[source.PullRequest]{Items: items, HasMore: resp.NextPage != 0}, nil
}

// ListIssues lists one page of issues updated since the given time. The
// issues endpoint also returns pull requests; those are dropped.
func (c *Client) ListIssues(ctx context.Context, repo source.Repository, since time.Time, req fetch.PageRequest) (fetch.Page[source.Issue], error) {
	issues, resp, err := c.rest.Issues.ListByRepo(ctx, repo.Owner, repo.Name, &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		Since:       since,
		ListOptions: listOptions(req),
	})
	if err != nil {
		return fetch.Page[source.Issue]{}, fmt.Errorf("list issues for %s: %w", repo.FullName(), err)
	}

	items := make([]source.Issue, 0, len(issues))
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		items = append(items, toIssue(repo, is))
	}
	return fetch.Page[source.Issue]{Items: items, HasMore: resp.NextPage != 0, Raw: len(issues)}, nil
}

// GetPullRequestDetail fetches one pull request's detail over REST. The
// REST commit listing carries no per-commit diff stats, so the detail is
// marked partial.
func (c *Client) GetPullRequestDetail(ctx context.Context, repo source.Repository, number int) (source.PullRequestDetail, error) {
	pr, _, err := c.rest.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return source.PullRequestDetail{}, fmt.Errorf("get pull request %s#%d: %w", repo.FullName(), number, err)
	}

	label := fmt.Sprintf("%s#%d", repo.FullName(), number)
	commits, err := fetch.NewOffset(label+" commits", func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Commit], error) {
		opts := listOptions(req)
		rcs, resp, err := c.rest.PullRequests.ListCommits(ctx, repo.Owner, repo.Name, number, &opts)
		if err != nil {
			return fetch.Page[source.Commit]{}, fmt.Errorf("list commits for %s: %w", label, err)
		}
		items := make([]source.Commit, 0, len(rcs))
		for _, rc := range rcs {
			items = append(items, toCommit(rc))
		}
		return fetch.Page[source.Commit]{Items: items, HasMore: resp.NextPage != 0}, nil
	}).Collect(ctx)
	if err != nil {
		return source.PullRequestDetail{}, err
	}

	reviews, err := fetch.NewOffset(label+" reviews", func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Review], error) {
		opts := listOptions(req)
		rs, resp, err := c.rest.PullRequests.ListReviews(ctx, repo.Owner, repo.Name, number, &opts)
		if err != nil {
			return fetch.Page[source.Review]{}, fmt.Errorf("list reviews for %s: %w", label, err)
		}
		items := make([]source.Review, 0, len(rs))
		for _, r := range rs {
			items = append(items, toReview(r))
		}
		return fetch.Page[source.Review]{Items: items, HasMore: resp.NextPage != 0}, nil
	}).Collect(ctx)
	if err != nil {
		return source.PullRequestDetail{}, err
	}

	return source.PullRequestDetail{
		Number:       number,
		Partial:      true,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		ChangedFiles: pr.ChangedFiles,
		Commits:      commits,
		Reviews:      reviews,
	}, nil
}

func toRepository(r *gh.Repository) source.Repository {
	return source.Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		DefaultBranch: r.GetDefaultBranch(),
		HasIssues:     r.GetHasIssues(),
		Fork:          r.GetFork(),
		Archived:      r.GetArchived(),
		Private:       r.GetPrivate(),
	}
}

func toActor(u *gh.User) *source.Actor {
	if u == nil || u.GetLogin() == "" {
		return nil
	}
	return &source.Actor{
		Login:     u.GetLogin(),
		ID:        u.GetNodeID(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		AvatarURL: u.GetAvatarURL(),
	}
}

func toTime(ts *gh.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.UTC()
	return &t
}

func toPullRequest(pr *gh.PullRequest) source.PullRequest {
	return source.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		URL:       pr.GetHTMLURL(),
		State:     pr.GetState(),
		Draft:     pr.GetDraft(),
		Author:    toActor(pr.GetUser()),
		BaseRef:   pr.GetBase().GetRef(),
		HeadRef:   pr.GetHead().GetRef(),
		CreatedAt: pr.GetCreatedAt().UTC(),
		UpdatedAt: pr.GetUpdatedAt().UTC(),
		ClosedAt:  toTime(pr.ClosedAt),
		MergedAt:  toTime(pr.MergedAt),
	}
}

func toCommit(rc *gh.RepositoryCommit) source.Commit {
	commit := rc.GetCommit()
	committed := commit.GetCommitter().GetDate()
	if committed.IsZero() {
		committed = commit.GetAuthor().GetDate()
	}
	return source.Commit{
		SHA:         rc.GetSHA(),
		Message:     commit.GetMessage(),
		URL:         rc.GetHTMLURL(),
		Author:      toActor(rc.GetAuthor()),
		AuthorName:  commit.GetAuthor().GetName(),
		AuthorEmail: commit.GetAuthor().GetEmail(),
		CommittedAt: committed.UTC(),
	}
}

func toReview(r *gh.PullRequestReview) source.Review {
	return source.Review{
		ID:          r.GetNodeID(),
		State:       r.GetState(),
		Author:      toActor(r.GetUser()),
		SubmittedAt: toTime(r.SubmittedAt),
		URL:         r.GetHTMLURL(),
	}
}

func toIssue(repo source.Repository, is *gh.Issue) source.Issue {
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.GetName())
	}
	return source.Issue{
		Key:         strconv.Itoa(is.GetNumber()),
		Number:      is.GetNumber(),
		Project:     repo.FullName(),
		Title:       is.GetTitle(),
		URL:         is.GetHTMLURL(),
		State:       is.GetState(),
		StateReason: is.GetStateReason(),
		Labels:      labels,
		Author:      toActor(is.GetUser()),
		Assignee:    toActor(is.GetAssignee()),
		CreatedAt:   is.GetCreatedAt().UTC(),
		UpdatedAt:   is.GetUpdatedAt().UTC(),
		ResolvedAt:  toTime(is.ClosedAt),
	}
}
