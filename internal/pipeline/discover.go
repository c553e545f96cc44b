package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/retry"
	"github.com/spiffcs/devexport/internal/source"
)

const repoUnitPrefix = "github:"

func unitID(repo source.Repository) string {
	return repoUnitPrefix + repo.FullName()
}

// plan discovers the repositories to export, ordered by unit id. Owners
// that do not exist are returned as skipped units.
func (p *Pipeline) plan(ctx context.Context) ([]source.Repository, []model.SkippedUnit, error) {
	if len(p.cfg.Owners) == 0 && len(p.cfg.Repos) == 0 {
		return nil, nil, nil
	}
	if p.host == nil {
		return nil, nil, fmt.Errorf("%w: no code host configured", ErrAborted)
	}

	var (
		repos   []source.Repository
		skipped []model.SkippedUnit
		seen    = make(map[string]bool)
	)
	addRepo := func(r source.Repository) {
		key := strings.ToLower(r.FullName())
		if seen[key] {
			return
		}
		seen[key] = true
		repos = append(repos, r)
	}

	for _, owner := range p.cfg.Owners {
		found, err := p.listRepositories(ctx, owner)
		if err != nil {
			if apierr.IsNotFound(err) {
				log.Warn("skipping unknown owner", "owner", owner, "error", err)
				skipped = append(skipped, model.SkippedUnit{
					Unit: repoUnitPrefix + owner, Reason: err.Error(), Class: string(retry.ClassNotFound),
				})
				continue
			}
			return nil, skipped, discoveryError(owner, err)
		}
		kept := 0
		for _, r := range found {
			if !p.wantRepository(r) {
				continue
			}
			addRepo(r)
			kept++
		}
		log.Info("discovered repositories", "owner", owner, "listed", len(found), "kept", kept)
	}

	for _, full := range p.cfg.Repos {
		owner, name, ok := strings.Cut(full, "/")
		if !ok || owner == "" || name == "" {
			return nil, skipped, fmt.Errorf("%w: invalid repository %q, want owner/name", ErrAborted, full)
		}
		r := source.Repository{Owner: owner, Name: name, HasIssues: true}
		if p.excluded(r) {
			continue
		}
		addRepo(r)
	}

	slices.SortFunc(repos, func(a, b source.Repository) int {
		return strings.Compare(unitID(a), unitID(b))
	})
	return repos, skipped, nil
}

func (p *Pipeline) listRepositories(ctx context.Context, owner string) ([]source.Repository, error) {
	list := func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Repository], error) {
		op := fmt.Sprintf("list repositories %s page %d", owner, req.Page)
		return retry.Call(ctx, p.policy, op, func(ctx context.Context) (fetch.Page[source.Repository], error) {
			p.metrics.Request("repositories")
			return p.host.ListRepositories(ctx, owner, req)
		})
	}
	return fetch.NewOffset("repositories "+owner, list,
		fetch.WithPageSize[source.Repository](p.cfg.PageSize),
		fetch.WithProgressEvery[source.Repository](p.cfg.ProgressEvery),
	).Collect(ctx)
}

func (p *Pipeline) wantRepository(r source.Repository) bool {
	switch {
	case r.Fork && !p.cfg.IncludeForks:
		log.Debug("skipping fork", "repo", r.FullName())
		return false
	case r.Archived && !p.cfg.IncludeArchived:
		log.Debug("skipping archived repository", "repo", r.FullName())
		return false
	}
	return !p.excluded(r)
}

// excluded matches either owner/name or a bare name.
func (p *Pipeline) excluded(r source.Repository) bool {
	for _, ex := range p.cfg.ExcludeRepos {
		if strings.EqualFold(ex, r.FullName()) || strings.EqualFold(ex, r.Name) {
			return true
		}
	}
	return false
}

// discoveryError aborts the run: without the repository list no unit can
// be planned.
func discoveryError(owner string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: interrupted listing %s: %w", ErrAborted, owner, err)
	case apierr.IsAuth(err):
		return fmt.Errorf("%w: listing %s: %w", ErrAuth, owner, err)
	default:
		return fmt.Errorf("%w: listing %s: %w", ErrAborted, owner, err)
	}
}

// prune drops resumed repository units that are no longer planned, e.g.
// a repository archived since the checkpoint was written.
func (r *run) prune(planned []source.Repository) {
	want := make(map[string]bool, len(planned))
	for _, repo := range planned {
		want[unitID(repo)] = true
	}
	dropped := r.acc.retain(func(u model.UnitResult) bool {
		return u.Kind != model.UnitRepository || want[u.Unit]
	})
	if dropped > 0 {
		log.Info("dropped checkpointed units no longer in scope", "units", dropped)
	}
}
