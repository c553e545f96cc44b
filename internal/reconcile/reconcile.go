// Package reconcile merges records that reach an export through more than
// one path and qualifies identifiers when several scopes share a snapshot.
package reconcile

import (
	"slices"
	"strings"

	"github.com/spiffcs/devexport/internal/model"
)

// MergeStats reports what MergeCommits did.
type MergeStats struct {
	FromPullRequests int
	DirectPushes     int
	Duplicates       int
}

// MergeCommits combines commits captured through pull requests with
// commits from repository history. Commits are keyed by SHA: the pull
// request path wins, a commit reached through several pull requests keeps
// the first, and history commits not seen through any pull request become
// direct pushes with no pull request reference.
func MergeCommits(prCommits, history []model.Commit) ([]model.Commit, MergeStats) {
	var stats MergeStats
	seen := make(map[string]struct{}, len(prCommits)+len(history))
	merged := make([]model.Commit, 0, len(prCommits)+len(history))

	for _, c := range prCommits {
		key := shaKey(c)
		if _, ok := seen[key]; ok {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		c.IsDirectPush = false
		merged = append(merged, c)
		stats.FromPullRequests++
	}

	for _, c := range history {
		key := shaKey(c)
		if _, ok := seen[key]; ok {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		c.IsDirectPush = true
		c.PRExternalID = nil
		merged = append(merged, c)
		stats.DirectPushes++
	}

	return merged, stats
}

func shaKey(c model.Commit) string {
	if c.SHA != "" {
		return strings.ToLower(c.SHA)
	}
	return strings.ToLower(c.ExternalID)
}

// Qualify prefixes id with owner/repo/.
func Qualify(owner, repo, id string) string {
	return owner + "/" + repo + "/" + id
}

// ShouldNamespace reports whether ids need qualifying: more than one owner
// is configured, or more than one repository contributed records.
func ShouldNamespace(owners []string, units []model.UnitResult) bool {
	if len(uniqueFold(owners)) > 1 {
		return true
	}
	repos := make(map[string]struct{})
	for _, u := range units {
		if u.Kind != model.UnitRepository || u.RecordCount() == 0 {
			continue
		}
		repos[strings.ToLower(u.RepoFullName())] = struct{}{}
		if len(repos) > 1 {
			return true
		}
	}
	return false
}

func uniqueFold(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Namespace returns a copy of a repository unit with every record id and
// every pull request reference qualified by owner/repo. Tracker units are
// returned unchanged; tracker keys are already unique within the tracker.
func Namespace(u model.UnitResult) model.UnitResult {
	if u.Kind != model.UnitRepository || u.Owner == "" || u.Repo == "" {
		return u
	}
	q := func(id string) string { return Qualify(u.Owner, u.Repo, id) }
	qp := func(id *string) *string {
		if id == nil {
			return nil
		}
		v := q(*id)
		return &v
	}

	out := u
	out.PullRequests = make([]model.PullRequest, len(u.PullRequests))
	for i, pr := range u.PullRequests {
		pr.ExternalID = q(pr.ExternalID)
		out.PullRequests[i] = pr
	}
	out.Commits = make([]model.Commit, len(u.Commits))
	for i, c := range u.Commits {
		c.ExternalID = q(c.ExternalID)
		c.PRExternalID = qp(c.PRExternalID)
		out.Commits[i] = c
	}
	out.Reviews = make([]model.Review, len(u.Reviews))
	for i, r := range u.Reviews {
		r.ExternalID = q(r.ExternalID)
		r.PRExternalID = qp(r.PRExternalID)
		out.Reviews[i] = r
	}
	out.Issues = make([]model.Issue, len(u.Issues))
	for i, is := range u.Issues {
		is.ExternalID = q(is.ExternalID)
		out.Issues[i] = is
	}
	return out
}
