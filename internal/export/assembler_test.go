package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffcs/devexport/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAssembler(owners ...string) *Assembler {
	return NewAssembler(
		WithScope(owners, nil, ""),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "export-1" }),
	)
}

func str(s string) *string { return &s }

func repoUnit(owner, repo string) model.UnitResult {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.UnitResult{
		Unit:  "github:" + owner + "/" + repo,
		Kind:  model.UnitRepository,
		Owner: owner,
		Repo:  repo,
		PullRequests: []model.PullRequest{
			{ExternalID: "pr-1", Number: 1, Repository: owner + "/" + repo, State: model.PRStateMerged, AuthorUsername: str("alice"), CreatedAt: created},
			{ExternalID: "pr-2", Number: 2, Repository: owner + "/" + repo, State: model.PRStateOpen, AuthorUsername: str("dependabot[bot]"), CreatedAt: created},
		},
		Commits: []model.Commit{
			{ExternalID: "aaa", SHA: "aaa", Repository: owner + "/" + repo, AuthorUsername: str("alice"), PRExternalID: str("pr-1"), CommittedAt: created},
			{ExternalID: "bbb", SHA: "bbb", Repository: owner + "/" + repo, AuthorUsername: str("bob"), PRExternalID: str("pr-2"), CommittedAt: created.Add(time.Hour)},
			{ExternalID: "ccc", SHA: "ccc", Repository: owner + "/" + repo, AuthorName: str("github-actions[bot]"), IsDirectPush: true, CommittedAt: created},
		},
		Reviews: []model.Review{
			{ExternalID: "r-1", PRExternalID: str("pr-1"), Repository: owner + "/" + repo, ReviewerUsername: str("carol"), State: model.ReviewStateApproved},
			{ExternalID: "r-2", PRExternalID: str("pr-2"), Repository: owner + "/" + repo, ReviewerUsername: str("carol"), State: model.ReviewStateCommented},
			{ExternalID: "r-3", PRExternalID: str("pr-1"), Repository: owner + "/" + repo, ReviewerUsername: str("codecov"), State: model.ReviewStateCommented},
		},
		Actors: []model.Contributor{
			{Username: "alice", Email: str("alice@users.noreply.github.com"), Sources: []string{"github"}},
			{Username: "alice", Email: str("alice@example.com"), DisplayName: str("Alice")},
			{Username: "dave", DisplayName: str("Dave")},
		},
	}
}

func TestAssembleExcludesBotsAndKeepsReferencesValid(t *testing.T) {
	snap := newTestAssembler("acme").Assemble([]model.UnitResult{repoUnit("acme", "api")}, model.UnitStats{Total: 1, Exported: 1})

	require.Len(t, snap.PullRequests, 1)
	assert.Equal(t, "pr-1", snap.PullRequests[0].ExternalID)

	require.Len(t, snap.Commits, 2)
	assert.Equal(t, "aaa", snap.Commits[0].ExternalID)
	assert.Equal(t, "bbb", snap.Commits[1].ExternalID)
	assert.Nil(t, snap.Commits[1].PRExternalID, "reference to excluded PR is nulled")

	require.Len(t, snap.Reviews, 1)
	assert.Equal(t, "r-1", snap.Reviews[0].ExternalID)

	// pr-2 by dependabot, commit ccc by github-actions, review r-3 by codecov
	assert.Equal(t, 3, snap.Metadata.Counts.BotsExcluded)

	usernames := make([]string, 0, len(snap.Contributors))
	for _, c := range snap.Contributors {
		usernames = append(usernames, c.Username)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, usernames)
	assert.Equal(t, "alice@example.com", model.Deref(snap.Contributors[0].Email))
	assert.Equal(t, "Alice", model.Deref(snap.Contributors[0].DisplayName))
}

func TestAssembleNamespacesAcrossRepositories(t *testing.T) {
	units := []model.UnitResult{repoUnit("acme", "api"), repoUnit("acme", "web")}
	snap := newTestAssembler("acme").Assemble(units, model.UnitStats{Total: 2, Exported: 2})

	require.Len(t, snap.PullRequests, 2)
	assert.Equal(t, "acme/api/pr-1", snap.PullRequests[0].ExternalID)
	assert.Equal(t, "acme/web/pr-1", snap.PullRequests[1].ExternalID)

	for _, r := range snap.Reviews {
		found := false
		for _, pr := range snap.PullRequests {
			if pr.ExternalID == model.Deref(r.PRExternalID) {
				found = true
			}
		}
		assert.True(t, found, "review %s references missing PR", r.ExternalID)
	}
}

func TestAssembleIsOrderIndependent(t *testing.T) {
	a := newTestAssembler("acme")
	u1, u2 := repoUnit("acme", "api"), repoUnit("acme", "web")

	first := a.Assemble([]model.UnitResult{u1, u2}, model.UnitStats{})
	second := a.Assemble([]model.UnitResult{u2, u1}, model.UnitStats{})

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(b1), string(b2))
}

func TestAssembleIssueAssigneeBot(t *testing.T) {
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	unit := model.UnitResult{
		Unit: "jira:ENG:page-0",
		Kind: model.UnitTrackerPage,
		Issues: []model.Issue{
			{ExternalID: "ENG-1", Key: "ENG-1", Source: "jira", AuthorUsername: str("erin"), AssigneeUsername: str("automation"), CreatedAt: created},
			{ExternalID: "ENG-2", Key: "ENG-2", Source: "jira", AssigneeUsername: str("jenkins"), CreatedAt: created},
		},
	}

	snap := newTestAssembler().Assemble([]model.UnitResult{unit}, model.UnitStats{})

	require.Len(t, snap.Issues, 1)
	assert.Nil(t, snap.Issues[0].AssigneeUsername)
	assert.NotNil(t, snap.Issues[0].Labels)
	assert.Equal(t, 1, snap.Metadata.Counts.BotsExcluded)
	require.Len(t, snap.Contributors, 1)
	assert.Equal(t, []string{"jira"}, snap.Contributors[0].Sources)
}

func TestAssembleEmptyEmitsExplicitCollections(t *testing.T) {
	snap := newTestAssembler().Assemble(nil, model.UnitStats{})

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{"pullRequests", "commits", "reviews", "issues", "contributors"} {
		assert.Equal(t, []any{}, doc[key], key)
	}
	meta := doc["metadata"].(map[string]any)
	assert.Nil(t, meta["since"])
	assert.Equal(t, "export-1", meta["exportId"])
	assert.Equal(t, []any{}, meta["units"].(map[string]any)["skipped"])
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "snapshot.json")
	snap := newTestAssembler("acme").Assemble([]model.UnitResult{repoUnit("acme", "api")}, model.UnitStats{Total: 1, Exported: 1})

	require.NoError(t, Write(path, snap, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, snap.Metadata.Counts, got.Metadata.Counts)

	var buf bytes.Buffer
	require.NoError(t, Write("-", snap, &buf))
	assert.Contains(t, buf.String(), `"schemaVersion"`)
}
