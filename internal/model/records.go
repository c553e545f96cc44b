// Package model defines the normalized records written to export snapshots
// and the per-unit results accumulated while an export runs.
package model

import "time"

// PRState is the normalized pull request state.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateMerged PRState = "merged"
	PRStateClosed PRState = "closed"
)

// ReviewState is the normalized review verdict.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "approved"
	ReviewStateChangesRequested ReviewState = "changes_requested"
	ReviewStateCommented        ReviewState = "commented"
	ReviewStateDismissed        ReviewState = "dismissed"
	ReviewStatePending          ReviewState = "pending"
)

// IssueState is the normalized issue state across code host and tracker.
type IssueState string

const (
	IssueStateOpen       IssueState = "open"
	IssueStateInProgress IssueState = "in_progress"
	IssueStateResolved   IssueState = "resolved"
	IssueStateClosed     IssueState = "closed"
)

// Nullable fields are pointers without omitempty so they serialize as null.

// PullRequest is a normalized pull request.
type PullRequest struct {
	ExternalID     string     `json:"externalId"`
	Number         int        `json:"number"`
	Repository     string     `json:"repository"`
	Title          string     `json:"title"`
	URL            *string    `json:"url"`
	State          PRState    `json:"state"`
	IsDraft        bool       `json:"isDraft"`
	AuthorUsername *string    `json:"authorUsername"`
	BaseBranch     *string    `json:"baseBranch"`
	HeadBranch     *string    `json:"headBranch"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	MergedAt       *time.Time `json:"mergedAt"`
	ClosedAt       *time.Time `json:"closedAt"`
	CycleTimeHours *float64   `json:"cycleTimeHours"`
	Additions      *int       `json:"additions"`
	Deletions      *int       `json:"deletions"`
	ChangedFiles   *int       `json:"changedFiles"`
	CommitCount    int        `json:"commitCount"`
	ReviewCount    int        `json:"reviewCount"`
}

// Commit is a normalized commit. Commits reached through a pull request
// carry its id in PRExternalID; commits found only in repository history
// are direct pushes.
type Commit struct {
	ExternalID     string    `json:"externalId"`
	SHA            string    `json:"sha"`
	Repository     string    `json:"repository"`
	Message        string    `json:"message"`
	URL            *string   `json:"url"`
	AuthorUsername *string   `json:"authorUsername"`
	AuthorName     *string   `json:"authorName"`
	AuthorEmail    *string   `json:"authorEmail"`
	CommittedAt    time.Time `json:"committedAt"`
	Additions      *int      `json:"additions"`
	Deletions      *int      `json:"deletions"`
	PRExternalID   *string   `json:"prExternalId"`
	IsDirectPush   bool      `json:"isDirectPush"`
	AIAssisted     bool      `json:"aiAssisted"`
	AITool         *string   `json:"aiTool"`
	AIModel        *string   `json:"aiModel"`
}

// Review is a normalized pull request review.
type Review struct {
	ExternalID       string      `json:"externalId"`
	PRExternalID     *string     `json:"prExternalId"`
	Repository       string      `json:"repository"`
	ReviewerUsername *string     `json:"reviewerUsername"`
	State            ReviewState `json:"state"`
	SubmittedAt      *time.Time  `json:"submittedAt"`
	URL              *string     `json:"url"`
}

// Issue is a normalized issue from the code host or the issue tracker.
type Issue struct {
	ExternalID       string     `json:"externalId"`
	Key              string     `json:"key"`
	Source           string     `json:"source"`
	Repository       *string    `json:"repository"`
	Project          *string    `json:"project"`
	Title            string     `json:"title"`
	URL              *string    `json:"url"`
	State            IssueState `json:"state"`
	RawStatus        *string    `json:"rawStatus"`
	IssueType        *string    `json:"issueType"`
	Priority         *string    `json:"priority"`
	Labels           []string   `json:"labels"`
	AuthorUsername   *string    `json:"authorUsername"`
	AssigneeUsername *string    `json:"assigneeUsername"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ResolvedAt       *time.Time `json:"resolvedAt"`
	CycleTimeHours   *float64   `json:"cycleTimeHours"`
}

// Contributor is a human actor referenced by exported records.
type Contributor struct {
	Username       string   `json:"username"`
	DisplayName    *string  `json:"displayName"`
	Email          *string  `json:"email"`
	AvatarURL      *string  `json:"avatarUrl"`
	ExternalUserID *string  `json:"externalUserId"`
	Sources        []string `json:"sources"`
}

// OptString returns nil for the empty string.
func OptString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// OptTime returns nil for the zero time.
func OptTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
