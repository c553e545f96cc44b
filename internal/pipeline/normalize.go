package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/classify"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/source"
)

// actorSet collects contributor details seen while normalizing one unit.
type actorSet struct {
	source string
	byName map[string]*model.Contributor
	order  []string
}

func newActorSet(src string) *actorSet {
	return &actorSet{source: src, byName: make(map[string]*model.Contributor)}
}

// add records a and returns its username, or nil for unknown actors.
// fallbackName and fallbackEmail come from commit metadata.
func (s *actorSet) add(a *source.Actor, fallbackName, fallbackEmail string) *string {
	if a == nil || a.Login == "" {
		return nil
	}
	c, ok := s.byName[a.Login]
	if !ok {
		c = &model.Contributor{Username: a.Login, Sources: []string{s.source}}
		s.byName[a.Login] = c
		s.order = append(s.order, a.Login)
	}
	if c.DisplayName == nil {
		c.DisplayName = model.OptString(firstNonEmpty(a.Name, fallbackName))
	}
	if c.Email == nil || (isNoReply(*c.Email) && !isNoReply(firstNonEmpty(a.Email, fallbackEmail))) {
		if e := firstNonEmpty(a.Email, fallbackEmail); e != "" {
			c.Email = &e
		}
	}
	if c.AvatarURL == nil {
		c.AvatarURL = model.OptString(a.AvatarURL)
	}
	if c.ExternalUserID == nil {
		c.ExternalUserID = model.OptString(a.ID)
	}
	login := a.Login
	return &login
}

func (s *actorSet) list() []model.Contributor {
	out := make([]model.Contributor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.byName[name])
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isNoReply(email string) bool {
	e := strings.ToLower(email)
	return strings.Contains(e, "noreply") || strings.Contains(e, "no-reply")
}

func prExternalID(number int) string {
	return strconv.Itoa(number)
}

func normalizePullRequest(repo source.Repository, pr source.PullRequest, detail *source.PullRequestDetail, actors *actorSet) model.PullRequest {
	created := pr.CreatedAt.UTC()
	out := model.PullRequest{
		ExternalID:     prExternalID(pr.Number),
		Number:         pr.Number,
		Repository:     repo.FullName(),
		Title:          pr.Title,
		URL:            model.OptString(pr.URL),
		State:          classify.PRState(pr),
		IsDraft:        pr.Draft,
		AuthorUsername: actors.add(pr.Author, "", ""),
		BaseBranch:     model.OptString(pr.BaseRef),
		HeadBranch:     model.OptString(pr.HeadRef),
		CreatedAt:      created,
		UpdatedAt:      pr.UpdatedAt.UTC(),
		MergedAt:       utcPtr(pr.MergedAt),
		ClosedAt:       utcPtr(pr.ClosedAt),
		CycleTimeHours: classify.CycleTimeHours(created, classify.PRTerminal(pr)),
	}
	if detail != nil {
		out.Additions = detail.Additions
		out.Deletions = detail.Deletions
		out.ChangedFiles = detail.ChangedFiles
		out.CommitCount = len(detail.Commits)
		out.ReviewCount = len(detail.Reviews)
	}
	return out
}

func normalizeCommit(repo source.Repository, c source.Commit, prID *string, actors *actorSet) model.Commit {
	assist := classify.DetectAssistance(c.Message)
	return model.Commit{
		ExternalID:     c.SHA,
		SHA:            c.SHA,
		Repository:     repo.FullName(),
		Message:        c.Message,
		URL:            model.OptString(c.URL),
		AuthorUsername: actors.add(c.Author, c.AuthorName, c.AuthorEmail),
		AuthorName:     model.OptString(c.AuthorName),
		AuthorEmail:    model.OptString(c.AuthorEmail),
		CommittedAt:    c.CommittedAt.UTC(),
		Additions:      c.Additions,
		Deletions:      c.Deletions,
		PRExternalID:   prID,
		AIAssisted:     assist.Assisted,
		AITool:         model.OptString(assist.Tool),
		AIModel:        model.OptString(assist.Model),
	}
}

func normalizeReview(repo source.Repository, prNumber, idx int, r source.Review, actors *actorSet) model.Review {
	id := r.ID
	if id == "" {
		id = fmt.Sprintf("%d-review-%d", prNumber, idx)
	}
	prID := prExternalID(prNumber)
	return model.Review{
		ExternalID:       id,
		PRExternalID:     &prID,
		Repository:       repo.FullName(),
		ReviewerUsername: actors.add(r.Author, "", ""),
		State:            classify.ReviewState(r.State),
		SubmittedAt:      utcPtr(r.SubmittedAt),
		URL:              model.OptString(r.URL),
	}
}

// normalizeIssue converts an issue from either source. repoName is empty
// for tracker issues.
func normalizeIssue(src, repoName string, is source.Issue, actors *actorSet) model.Issue {
	state := classify.IssueState(is)
	created := is.CreatedAt.UTC()

	var cycle *float64
	if state == model.IssueStateResolved || state == model.IssueStateClosed {
		cycle = classify.CycleTimeHours(created, is.ResolvedAt)
	}

	labels := is.Labels
	if labels == nil {
		labels = []string{}
	}

	return model.Issue{
		ExternalID:       is.Key,
		Key:              is.Key,
		Source:           src,
		Repository:       model.OptString(repoName),
		Project:          model.OptString(is.Project),
		Title:            is.Title,
		URL:              model.OptString(is.URL),
		State:            state,
		RawStatus:        model.OptString(is.State),
		IssueType:        model.OptString(is.Type),
		Priority:         model.OptString(is.Priority),
		Labels:           labels,
		AuthorUsername:   actors.add(is.Author, "", ""),
		AssigneeUsername: actors.add(is.Assignee, "", ""),
		CreatedAt:        created,
		UpdatedAt:        is.UpdatedAt.UTC(),
		ResolvedAt:       utcPtr(is.ResolvedAt),
		CycleTimeHours:   cycle,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
