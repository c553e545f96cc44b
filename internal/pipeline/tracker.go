package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/retry"
	"github.com/spiffcs/devexport/internal/source"
)

func trackerUnitID(name string, page int) string {
	return fmt.Sprintf("%s:page-%d", name, page)
}

func trackerPage(name, unit string) (int, bool) {
	rest, ok := strings.CutPrefix(unit, name+":page-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil && n >= 0
}

// resumeTracker keeps the contiguous run of completed tracker pages from
// page 0 and returns the page to continue from. done is true when the last
// kept page ended the query. For cursor paging cursor is the token saved
// with the last kept page; without it the walk starts over.
func (r *run) resumeTracker(name string, style fetch.Style) (next int, cursor string, done bool) {
	for {
		u, ok := r.acc.get(trackerUnitID(name, next))
		if !ok {
			break
		}
		next++
		cursor = u.NextCursor
		if u.LastPage {
			done = true
			break
		}
	}
	if style == fetch.StyleCursor && next > 0 && !done && cursor == "" {
		log.Warn("tracker continuation token missing, starting over", "tracker", name, "pages", next)
		next = 0
	}
	r.acc.retain(func(u model.UnitResult) bool {
		if u.Kind != model.UnitTrackerPage {
			return true
		}
		n, ok := trackerPage(name, u.Unit)
		return ok && n < next
	})
	return next, cursor, done
}

// exportTracker walks the tracker query one page at a time. Each page is
// its own unit and is checkpointed as soon as it is normalized.
func (r *run) exportTracker() error {
	name := r.tracker.Name()
	style := r.tracker.Paging()
	start, cursor, done := r.resumeTracker(name, style)
	r.total += start
	r.replayed += start
	if start > 0 {
		log.Debug("replaying tracker pages from checkpoint", "tracker", name, "pages", start)
	}
	if done {
		return nil
	}

	maxPages := r.cfg.MaxPages
	if maxPages > 0 {
		maxPages -= start
		if maxPages <= 0 {
			return nil
		}
	}

	list := func(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Issue], error) {
		op := fmt.Sprintf("%s: search page %d", name, req.Page)
		return retry.Call(ctx, r.policy, op, func(ctx context.Context) (fetch.Page[source.Issue], error) {
			r.metrics.Request("tracker_search")
			return r.tracker.SearchIssues(ctx, req)
		})
	}
	opts := []fetch.Option[source.Issue]{
		fetch.WithStartPage[source.Issue](start),
		fetch.WithPageSize[source.Issue](r.cfg.TrackerPageSize),
		fetch.WithMaxPages[source.Issue](maxPages),
		fetch.WithProgressEvery[source.Issue](r.cfg.ProgressEvery),
	}
	pages := fetch.NewOffset(name, list, opts...)
	if style == fetch.StyleCursor {
		pages = fetch.NewCursor(name, list, append(opts, fetch.WithStartCursor[source.Issue](cursor))...)
	}

	next := start
	started := r.now()
	for page, err := range pages.Pages(r.ctx) {
		unit := trackerUnitID(name, next)
		r.total++
		if err != nil {
			if err := r.fail(unit, err, started); err != nil {
				return err
			}
			// Later pages cannot be addressed reliably without this one.
			return nil
		}

		log.Progress("Exporting %s page %d", name, next+1)
		u := r.normalizeTrackerPage(name, unit, style, page)
		r.emit(Event{Kind: EventTrackerPage, Unit: unit, Done: next + 1, Total: trackerPages(page, r.cfg.TrackerPageSize), Records: u.RecordCount()})
		if err := r.commit(u, started); err != nil {
			return err
		}
		next++
		started = r.now()
	}
	return nil
}

func (r *run) normalizeTrackerPage(name, unit string, style fetch.Style, page fetch.Page[source.Issue]) model.UnitResult {
	u := model.UnitResult{
		Unit:     unit,
		Kind:     model.UnitTrackerPage,
		LastPage: !page.HasMore || max(len(page.Items), page.Raw) < r.cfg.TrackerPageSize,
	}
	if style == fetch.StyleCursor {
		u.LastPage = !page.HasMore || page.NextCursor == ""
		u.NextCursor = page.NextCursor
	}
	if page.Number == 0 && len(page.Items) == 0 {
		u.Warnings = append(u.Warnings, fmt.Sprintf("%s query returned no issues", name))
	}

	actors := newActorSet(constants.SourceJira)
	for _, is := range page.Items {
		u.Issues = append(u.Issues, normalizeIssue(constants.SourceJira, "", is, actors))
	}
	u.Actors = actors.list()
	return u
}

// trackerPages estimates the page count from the reported total.
func trackerPages(page fetch.Page[source.Issue], perPage int) int {
	if page.Total <= 0 || perPage <= 0 {
		return 0
	}
	return (page.Total + perPage - 1) / perPage
}
