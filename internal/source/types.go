// Package source defines records as returned by remote systems and the
// capabilities an export needs from them. Adapters (ghclient, jira)
// implement these interfaces; the pipeline only depends on them.
package source

import (
	"context"
	"time"

	"github.com/spiffcs/devexport/internal/fetch"
)

// Repository is a repository on the code host.
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
	HasIssues     bool   `json:"hasIssues"`
	Fork          bool   `json:"fork,omitempty"`
	Archived      bool   `json:"archived,omitempty"`
	Private       bool   `json:"private,omitempty"`
}

// FullName returns owner/name.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Actor is a user as reported by a source. A nil *Actor means the
// account is unknown or deleted.
type Actor struct {
	Login     string `json:"login"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// PullRequest is a pull request as listed by the code host.
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	State     string     `json:"state"`
	Draft     bool       `json:"draft"`
	Author    *Actor     `json:"author,omitempty"`
	BaseRef   string     `json:"baseRef,omitempty"`
	HeadRef   string     `json:"headRef,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	MergedAt  *time.Time `json:"mergedAt,omitempty"`
}

// Commit is a commit from a pull request or repository history.
type Commit struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	URL         string    `json:"url,omitempty"`
	Author      *Actor    `json:"author,omitempty"`
	AuthorName  string    `json:"authorName,omitempty"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	CommittedAt time.Time `json:"committedAt"`
	Additions   *int      `json:"additions,omitempty"`
	Deletions   *int      `json:"deletions,omitempty"`
}

// Review is a submitted pull request review.
type Review struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Author      *Actor     `json:"author,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// PullRequestDetail is the secondary data resolved per pull request.
// The batched path fills diff stats for commits; the single-item fallback
// leaves them nil and sets Partial.
type PullRequestDetail struct {
	Number       int      `json:"number"`
	Partial      bool     `json:"partial,omitempty"`
	Additions    *int     `json:"additions,omitempty"`
	Deletions    *int     `json:"deletions,omitempty"`
	ChangedFiles *int     `json:"changedFiles,omitempty"`
	Commits      []Commit `json:"commits"`
	Reviews      []Review `json:"reviews"`
}

// Issue is an issue from the code host or the issue tracker. State holds
// the raw state string; StatusCategory is set by trackers that group
// workflow statuses (new, indeterminate, done).
type Issue struct {
	Key            string     `json:"key"`
	Number         int        `json:"number,omitempty"`
	Project        string     `json:"project,omitempty"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	State          string     `json:"state"`
	StateReason    string     `json:"stateReason,omitempty"`
	StatusCategory string     `json:"statusCategory,omitempty"`
	Type           string     `json:"type,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	Author         *Actor     `json:"author,omitempty"`
	Assignee       *Actor     `json:"assignee,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Host is the code host capability set: list paging, one batched query
// carrying many sub-queries, and a single-item lookup used as fallback.
type Host interface {
	ListRepositories(ctx context.Context, owner string, req fetch.PageRequest) (fetch.Page[Repository], error)
	ListPullRequests(ctx context.Context, repo Repository, req fetch.PageRequest) (fetch.Page[PullRequest], error)
	ListIssues(ctx context.Context, repo Repository, since time.Time, req fetch.PageRequest) (fetch.Page[Issue], error)
	ListCommitHistory(ctx context.Context, repo Repository, since time.Time, req fetch.PageRequest) (fetch.Page[Commit], error)
	BatchPullRequestDetails(ctx context.Context, repo Repository, numbers []int) (map[int]PullRequestDetail, error)
	GetPullRequestDetail(ctx context.Context, repo Repository, number int) (PullRequestDetail, error)
}

// Tracker is an issue tracker searched page by page, either by offset or
// by continuation token.
type Tracker interface {
	// Name identifies the tracker scope, e.g. "jira:PROJ".
	Name() string
	Paging() fetch.Style
	SearchIssues(ctx context.Context, req fetch.PageRequest) (fetch.Page[Issue], error)
}
