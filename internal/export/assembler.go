// Package export assembles accumulated unit results into a snapshot and
// writes it to disk.
package export

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spiffcs/devexport/internal/classify"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/reconcile"
)

// Assembler turns unit results into a snapshot. Assembly is deterministic:
// the same units in any order produce the same collections.
type Assembler struct {
	owners  []string
	repos   []string
	tracker string
	since   *time.Time
	bots    *classify.BotDetector
	now     func() time.Time
	newID   func() string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithScope records the configured owners, explicit repositories and tracker.
func WithScope(owners, repos []string, tracker string) Option {
	return func(a *Assembler) {
		a.owners = owners
		a.repos = repos
		a.tracker = tracker
	}
}

// WithSince records the since filter.
func WithSince(since *time.Time) Option {
	return func(a *Assembler) {
		a.since = since
	}
}

// WithBots sets the bot detector used for exclusion.
func WithBots(d *classify.BotDetector) Option {
	return func(a *Assembler) {
		a.bots = d
	}
}

// WithClock overrides the export timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// WithIDGenerator overrides the export id source.
func WithIDGenerator(fn func() string) Option {
	return func(a *Assembler) {
		a.newID = fn
	}
}

// NewAssembler creates an Assembler.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		bots:  classify.NewBotDetector(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the snapshot. Contributors are derived last, from the
// usernames the surviving records reference.
func (a *Assembler) Assemble(units []model.UnitResult, stats model.UnitStats) *model.Snapshot {
	namespace := reconcile.ShouldNamespace(a.owners, units)
	log.Debug("assembling snapshot", "units", len(units), "namespaced", namespace)

	var (
		prs     []model.PullRequest
		commits []model.Commit
		reviews []model.Review
		issues  []model.Issue
		actors  []model.Contributor
	)
	for _, u := range units {
		if namespace {
			u = reconcile.Namespace(u)
		}
		prs = append(prs, u.PullRequests...)
		commits = append(commits, u.Commits...)
		reviews = append(reviews, u.Reviews...)
		issues = append(issues, u.Issues...)
		actors = append(actors, u.Actors...)
	}

	prs = dedupe(prs, func(p model.PullRequest) string { return p.ExternalID })
	commits = dedupe(commits, func(c model.Commit) string { return c.ExternalID })
	reviews = dedupe(reviews, func(r model.Review) string { return r.ExternalID })
	issues = dedupe(issues, func(i model.Issue) string { return i.Source + "\x00" + i.ExternalID })

	f := a.excludeBots(prs, commits, reviews, issues)
	f.enforceReferences()
	contributors := buildContributors(f, actors)

	sortRecords(&f)
	slices.SortFunc(contributors, func(x, y model.Contributor) int { return cmp.Compare(x.Username, y.Username) })

	if stats.Skipped == nil {
		stats.Skipped = []model.SkippedUnit{}
	}

	return &model.Snapshot{
		Metadata: model.Metadata{
			ExportID:      a.newID(),
			ExportedAt:    a.now().UTC(),
			SchemaVersion: constants.SchemaVersion,
			Scope: model.Scope{
				Owners:       nonNil(a.owners),
				Repositories: nonNil(a.repos),
				Tracker:      model.OptString(a.tracker),
			},
			Since: a.since,
			Units: stats,
			Counts: model.Counts{
				PullRequests: len(f.prs),
				Commits:      len(f.commits),
				Reviews:      len(f.reviews),
				Issues:       len(f.issues),
				Contributors: len(contributors),
				BotsExcluded: f.botsExcluded,
			},
		},
		PullRequests: f.prs,
		Commits:      f.commits,
		Reviews:      f.reviews,
		Issues:       f.issues,
		Contributors: contributors,
	}
}

type filtered struct {
	prs          []model.PullRequest
	commits      []model.Commit
	reviews      []model.Review
	issues       []model.Issue
	botsExcluded int
}

func (a *Assembler) excludeBots(prs []model.PullRequest, commits []model.Commit, reviews []model.Review, issues []model.Issue) filtered {
	f := filtered{
		prs:     make([]model.PullRequest, 0, len(prs)),
		commits: make([]model.Commit, 0, len(commits)),
		reviews: make([]model.Review, 0, len(reviews)),
		issues:  make([]model.Issue, 0, len(issues)),
	}

	for _, pr := range prs {
		if a.bots.IsBotPtr(pr.AuthorUsername) {
			f.botsExcluded++
			continue
		}
		f.prs = append(f.prs, pr)
	}
	for _, c := range commits {
		if a.bots.IsBotPtr(c.AuthorUsername) || (c.AuthorUsername == nil && a.bots.IsBotPtr(c.AuthorName)) {
			f.botsExcluded++
			continue
		}
		f.commits = append(f.commits, c)
	}
	for _, r := range reviews {
		if a.bots.IsBotPtr(r.ReviewerUsername) {
			f.botsExcluded++
			continue
		}
		f.reviews = append(f.reviews, r)
	}
	for _, is := range issues {
		authorBot := a.bots.IsBotPtr(is.AuthorUsername)
		assigneeBot := a.bots.IsBotPtr(is.AssigneeUsername)
		if authorBot || (is.AuthorUsername == nil && assigneeBot) {
			f.botsExcluded++
			continue
		}
		if assigneeBot {
			is.AssigneeUsername = nil
		}
		if is.Labels == nil {
			is.Labels = []string{}
		}
		f.issues = append(f.issues, is)
	}
	return f
}

// enforceReferences nulls commit references to pull requests that are not
// exported and drops reviews whose pull request is not exported.
func (f *filtered) enforceReferences() {
	prIDs := make(map[string]struct{}, len(f.prs))
	for _, pr := range f.prs {
		prIDs[pr.ExternalID] = struct{}{}
	}
	resolves := func(id *string) bool {
		if id == nil {
			return false
		}
		_, ok := prIDs[*id]
		return ok
	}

	for i := range f.commits {
		if f.commits[i].PRExternalID != nil && !resolves(f.commits[i].PRExternalID) {
			f.commits[i].PRExternalID = nil
		}
	}

	kept := f.reviews[:0]
	for _, r := range f.reviews {
		if resolves(r.PRExternalID) {
			kept = append(kept, r)
		}
	}
	f.reviews = kept
}

func buildContributors(f filtered, actors []model.Contributor) []model.Contributor {
	referenced := make(map[string]*model.Contributor)
	ref := func(username *string, src string) {
		if username == nil || *username == "" {
			return
		}
		c, ok := referenced[*username]
		if !ok {
			c = &model.Contributor{Username: *username, Sources: []string{}}
			referenced[*username] = c
		}
		if src != "" && !slices.Contains(c.Sources, src) {
			c.Sources = append(c.Sources, src)
		}
	}

	for _, pr := range f.prs {
		ref(pr.AuthorUsername, constants.SourceGitHub)
	}
	for _, c := range f.commits {
		ref(c.AuthorUsername, constants.SourceGitHub)
	}
	for _, r := range f.reviews {
		ref(r.ReviewerUsername, constants.SourceGitHub)
	}
	for _, is := range f.issues {
		ref(is.AuthorUsername, is.Source)
		ref(is.AssigneeUsername, is.Source)
	}

	for _, a := range actors {
		c, ok := referenced[a.Username]
		if !ok {
			continue
		}
		mergeContributor(c, a)
	}

	out := make([]model.Contributor, 0, len(referenced))
	for _, c := range referenced {
		slices.Sort(c.Sources)
		out = append(out, *c)
	}
	return out
}

// mergeContributor fills empty fields of dst from src. A real email
// replaces a noreply placeholder.
func mergeContributor(dst *model.Contributor, src model.Contributor) {
	if dst.DisplayName == nil {
		dst.DisplayName = src.DisplayName
	}
	if dst.AvatarURL == nil {
		dst.AvatarURL = src.AvatarURL
	}
	if dst.ExternalUserID == nil {
		dst.ExternalUserID = src.ExternalUserID
	}
	if src.Email != nil && (dst.Email == nil || (isNoReply(*dst.Email) && !isNoReply(*src.Email))) {
		dst.Email = src.Email
	}
	for _, s := range src.Sources {
		if !slices.Contains(dst.Sources, s) {
			dst.Sources = append(dst.Sources, s)
		}
	}
}

func isNoReply(email string) bool {
	e := strings.ToLower(email)
	return strings.Contains(e, "noreply") || strings.Contains(e, "no-reply")
}

func sortRecords(f *filtered) {
	slices.SortFunc(f.prs, func(x, y model.PullRequest) int {
		return cmp.Or(cmp.Compare(x.Repository, y.Repository), cmp.Compare(x.Number, y.Number), cmp.Compare(x.ExternalID, y.ExternalID))
	})
	slices.SortFunc(f.commits, func(x, y model.Commit) int {
		return cmp.Or(cmp.Compare(x.Repository, y.Repository), x.CommittedAt.Compare(y.CommittedAt), cmp.Compare(x.ExternalID, y.ExternalID))
	})
	slices.SortFunc(f.reviews, func(x, y model.Review) int {
		return cmp.Or(cmp.Compare(model.Deref(x.PRExternalID), model.Deref(y.PRExternalID)), cmp.Compare(x.ExternalID, y.ExternalID))
	})
	slices.SortFunc(f.issues, func(x, y model.Issue) int {
		return cmp.Or(cmp.Compare(x.Source, y.Source), cmp.Compare(x.ExternalID, y.ExternalID))
	})
}

func dedupe[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
