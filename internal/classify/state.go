package classify

import (
	"math"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/source"
)

// PRState normalizes a pull request. A merge timestamp always wins.
func PRState(pr source.PullRequest) model.PRState {
	if pr.MergedAt != nil && !pr.MergedAt.IsZero() {
		return model.PRStateMerged
	}
	switch strings.ToLower(pr.State) {
	case "merged":
		return model.PRStateMerged
	case "closed":
		return model.PRStateClosed
	default:
		return model.PRStateOpen
	}
}

// PRTerminal returns the timestamp that ends a pull request's cycle:
// the merge time, else the close time, else nil.
func PRTerminal(pr source.PullRequest) *time.Time {
	if pr.MergedAt != nil && !pr.MergedAt.IsZero() {
		return pr.MergedAt
	}
	if pr.ClosedAt != nil && !pr.ClosedAt.IsZero() {
		return pr.ClosedAt
	}
	return nil
}

// ReviewState normalizes REST (APPROVED) and GraphQL (CHANGES_REQUESTED)
// review states.
func ReviewState(raw string) model.ReviewState {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")) {
	case "APPROVED":
		return model.ReviewStateApproved
	case "CHANGES_REQUESTED":
		return model.ReviewStateChangesRequested
	case "DISMISSED":
		return model.ReviewStateDismissed
	case "PENDING":
		return model.ReviewStatePending
	default:
		return model.ReviewStateCommented
	}
}

// IssueState normalizes an issue. Tracker status categories take
// precedence; otherwise the code host state and close reason are used.
func IssueState(issue source.Issue) model.IssueState {
	switch strings.ToLower(issue.StatusCategory) {
	case "new", "to do", "todo":
		return model.IssueStateOpen
	case "indeterminate", "in progress":
		return model.IssueStateInProgress
	case "done":
		if isCancelled(issue.State) {
			return model.IssueStateClosed
		}
		return model.IssueStateResolved
	}

	switch strings.ToLower(issue.State) {
	case "open", "reopened":
		return model.IssueStateOpen
	case "closed":
		if strings.EqualFold(issue.StateReason, "not_planned") || strings.EqualFold(issue.StateReason, "duplicate") {
			return model.IssueStateClosed
		}
		return model.IssueStateResolved
	case "in progress", "in_progress", "in review":
		return model.IssueStateInProgress
	case "done", "resolved":
		return model.IssueStateResolved
	default:
		if isCancelled(issue.State) {
			return model.IssueStateClosed
		}
		return model.IssueStateOpen
	}
}

func isCancelled(status string) bool {
	switch strings.ToLower(status) {
	case "cancelled", "canceled", "won't do", "wont do", "won't fix", "duplicate", "rejected", "declined":
		return true
	}
	return false
}

// CycleTimeHours returns (terminal - created) in hours rounded to two
// decimals, or nil without a terminal timestamp. Zero and negative
// results are returned as-is.
func CycleTimeHours(created time.Time, terminal *time.Time) *float64 {
	if terminal == nil || terminal.IsZero() || created.IsZero() {
		return nil
	}
	hours := terminal.Sub(created).Seconds() / 3600
	rounded := math.Round(hours*100) / 100
	return &rounded
}
