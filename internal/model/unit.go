package model

// UnitKind distinguishes the two kinds of unit of work.
type UnitKind string

const (
	UnitRepository  UnitKind = "repository"
	UnitTrackerPage UnitKind = "tracker_page"
)

// UnitResult is everything one completed unit of work contributed. Records
// hold unqualified ids; namespacing happens at assembly time.
type UnitResult struct {
	Unit         string        `json:"unit"`
	Kind         UnitKind      `json:"kind"`
	Owner        string        `json:"owner,omitempty"`
	Repo         string        `json:"repo,omitempty"`
	PullRequests []PullRequest `json:"pullRequests,omitempty"`
	Commits      []Commit      `json:"commits,omitempty"`
	Reviews      []Review      `json:"reviews,omitempty"`
	Issues       []Issue       `json:"issues,omitempty"`
	Actors       []Contributor `json:"actors,omitempty"`
	LastPage     bool          `json:"lastPage,omitempty"`
	// NextCursor is the continuation token after a cursor-paged tracker
	// page. Resuming from this page needs it.
	NextCursor string   `json:"nextCursor,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// RecordCount returns the number of activity records in the unit.
func (u UnitResult) RecordCount() int {
	return len(u.PullRequests) + len(u.Commits) + len(u.Reviews) + len(u.Issues)
}

// RepoFullName returns owner/repo for repository units.
func (u UnitResult) RepoFullName() string {
	if u.Owner == "" || u.Repo == "" {
		return ""
	}
	return u.Owner + "/" + u.Repo
}
