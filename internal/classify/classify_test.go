package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/source"
)

func TestIsBot(t *testing.T) {
	d := NewBotDetector("release-manager")

	tests := []struct {
		login string
		want  bool
	}{
		{"dependabot[bot]", true},
		{"Dependabot", true},
		{"renovate-bot", true},
		{"github-actions[bot]", true},
		{"deploy_bot", true},
		{"snyk-bot", true},
		{"web-flow", true},
		{"codecov", true},
		{"release-manager", true},
		{"RELEASE-MANAGER", true},
		{"alice", false},
		{"robotics-fan", false},
		{"abbot", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.login, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsBot(tt.login))
		})
	}
}

func TestIsBotPtr(t *testing.T) {
	d := NewBotDetector()
	login := "renovate[bot]"

	assert.True(t, d.IsBotPtr(&login))
	assert.False(t, d.IsBotPtr(nil))
}

func TestDetectAssistance(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Assistance
	}{
		{
			name:    "plain commit",
			message: "fix: handle nil cursor",
			want:    Assistance{},
		},
		{
			name:    "empty message",
			message: "",
			want:    Assistance{},
		},
		{
			name: "claude code footer",
			message: "feat: add exporter\n\n🤖 Generated with [Claude Code](https://claude.com/claude-code)\n\n" +
				"Co-Authored-By: Claude Opus 4.1 <noreply@anthropic.com>",
			want: Assistance{Assisted: true, Tool: "claude-code", Model: "opus-4.1"},
		},
		{
			name:    "claude without model",
			message: "chore: tidy\n\nCo-Authored-By: Claude <noreply@anthropic.com>",
			want:    Assistance{Assisted: true, Tool: "claude-code"},
		},
		{
			name:    "copilot trailer",
			message: "docs: update\n\nCo-authored-by: Copilot <175728472+Copilot@users.noreply.github.com>",
			want:    Assistance{Assisted: true, Tool: "github-copilot"},
		},
		{
			name:    "aider with model",
			message: "aider: refactor parser\n\nCo-authored-by: aider (anthropic/claude-3-5-sonnet) <noreply@aider.chat>",
			want:    Assistance{Assisted: true, Tool: "aider", Model: "anthropic/claude-3-5-sonnet"},
		},
		{
			name:    "cursor agent",
			message: "fix bug\n\nCo-authored-by: Cursor Agent <cursoragent@cursor.com>",
			want:    Assistance{Assisted: true, Tool: "cursor"},
		},
		{
			name:    "first rule wins",
			message: "x\n\nCo-authored-by: Copilot <a@b>\nCo-Authored-By: Claude <noreply@anthropic.com>",
			want:    Assistance{Assisted: true, Tool: "claude-code"},
		},
		{
			name:    "mentioning copilot in prose is not a trailer",
			message: "remove copilot config",
			want:    Assistance{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectAssistance(tt.message))
		})
	}
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestPRState(t *testing.T) {
	assert.Equal(t, model.PRStateOpen, PRState(source.PullRequest{State: "open"}))
	assert.Equal(t, model.PRStateClosed, PRState(source.PullRequest{State: "closed", ClosedAt: ts("2025-01-02T00:00:00Z")}))
	assert.Equal(t, model.PRStateMerged, PRState(source.PullRequest{State: "closed", MergedAt: ts("2025-01-02T00:00:00Z")}))
	assert.Equal(t, model.PRStateMerged, PRState(source.PullRequest{State: "MERGED"}))
}

func TestPRTerminal(t *testing.T) {
	merged := ts("2025-01-03T00:00:00Z")
	closed := ts("2025-01-02T00:00:00Z")

	assert.Equal(t, merged, PRTerminal(source.PullRequest{MergedAt: merged, ClosedAt: closed}))
	assert.Equal(t, closed, PRTerminal(source.PullRequest{ClosedAt: closed}))
	assert.Nil(t, PRTerminal(source.PullRequest{}))
}

func TestReviewState(t *testing.T) {
	tests := map[string]model.ReviewState{
		"APPROVED":          model.ReviewStateApproved,
		"approved":          model.ReviewStateApproved,
		"CHANGES_REQUESTED": model.ReviewStateChangesRequested,
		"changes requested": model.ReviewStateChangesRequested,
		"COMMENTED":         model.ReviewStateCommented,
		"DISMISSED":         model.ReviewStateDismissed,
		"PENDING":           model.ReviewStatePending,
		"":                  model.ReviewStateCommented,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ReviewState(raw), raw)
	}
}

func TestIssueState(t *testing.T) {
	tests := []struct {
		name  string
		issue source.Issue
		want  model.IssueState
	}{
		{"github open", source.Issue{State: "open"}, model.IssueStateOpen},
		{"github completed", source.Issue{State: "closed", StateReason: "completed"}, model.IssueStateResolved},
		{"github not planned", source.Issue{State: "closed", StateReason: "not_planned"}, model.IssueStateClosed},
		{"jira to do", source.Issue{State: "Backlog", StatusCategory: "new"}, model.IssueStateOpen},
		{"jira in progress", source.Issue{State: "In Review", StatusCategory: "indeterminate"}, model.IssueStateInProgress},
		{"jira done", source.Issue{State: "Done", StatusCategory: "done"}, model.IssueStateResolved},
		{"jira won't do", source.Issue{State: "Won't Do", StatusCategory: "done"}, model.IssueStateClosed},
		{"unknown status", source.Issue{State: "Triage"}, model.IssueStateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IssueState(tt.issue))
		})
	}
}

func TestCycleTimeHours(t *testing.T) {
	created := *ts("2025-01-01T00:00:00Z")

	t.Run("no terminal timestamp", func(t *testing.T) {
		assert.Nil(t, CycleTimeHours(created, nil))
	})

	t.Run("rounded to two decimals", func(t *testing.T) {
		got := CycleTimeHours(created, ts("2025-01-01T01:00:20Z"))
		require.NotNil(t, got)
		assert.Equal(t, 1.01, *got)
	})

	t.Run("zero is kept", func(t *testing.T) {
		got := CycleTimeHours(created, &created)
		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got)
	})

	t.Run("negative is not clamped", func(t *testing.T) {
		got := CycleTimeHours(created, ts("2024-12-31T22:00:00Z"))
		require.NotNil(t, got)
		assert.Equal(t, -2.0, *got)
	})
}
