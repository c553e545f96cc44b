// Package fetch walks paginated remote listings lazily.
//
// Two styles are supported: offset pagination (page numbers) and cursor
// pagination (opaque continuation tokens). A Paginator never retries on
// its own; the PageFunc it wraps is expected to apply the retry policy and
// a terminal failure from it ends the walk.
package fetch

import (
	"context"
	"iter"

	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/log"
)

// Style selects how a Paginator advances.
type Style int

const (
	StyleOffset Style = iota
	StyleCursor
)

func (s Style) String() string {
	if s == StyleCursor {
		return "cursor"
	}
	return "offset"
}

// PageRequest identifies one page. Page is zero-based for offset listings;
// adapters translate it to their own numbering.
type PageRequest struct {
	Page    int
	PerPage int
	Cursor  string
}

// Page is one page of results. Offset listings report HasMore; cursor
// listings set NextCursor. Adapters that drop entries from a page set Raw to
// the number the remote returned so the short-page check is not fooled.
type Page[T any] struct {
	Items      []T
	Number     int
	HasMore    bool
	NextCursor string
	Total      int
	Raw        int
}

// PageFunc fetches one page.
type PageFunc[T any] func(ctx context.Context, req PageRequest) (Page[T], error)

// Paginator yields pages from a PageFunc until the listing is exhausted,
// the page cap is reached, or a stop predicate matches.
type Paginator[T any] struct {
	label         string
	style         Style
	fetch         PageFunc[T]
	perPage       int
	maxPages      int
	startPage     int
	startCursor   string
	progressEvery int
	stopWhen      func(items []T) bool
	onProgress    func(pages, items int)
}

// Option configures a Paginator.
type Option[T any] func(*Paginator[T])

// WithPageSize sets the number of items requested per page.
func WithPageSize[T any](n int) Option[T] {
	return func(p *Paginator[T]) {
		if n > 0 {
			p.perPage = n
		}
	}
}

// WithMaxPages caps the number of pages fetched. Zero means no cap.
func WithMaxPages[T any](n int) Option[T] {
	return func(p *Paginator[T]) {
		p.maxPages = n
	}
}

// WithStartPage begins an offset walk at the given zero-based page.
func WithStartPage[T any](n int) Option[T] {
	return func(p *Paginator[T]) {
		p.startPage = n
	}
}

// WithStartCursor begins a cursor walk at a token saved from an earlier
// walk. Combine with WithStartPage to keep page numbers continuous.
func WithStartCursor[T any](cursor string) Option[T] {
	return func(p *Paginator[T]) {
		p.startCursor = cursor
	}
}

// WithProgressEvery logs progress every n pages.
func WithProgressEvery[T any](n int) Option[T] {
	return func(p *Paginator[T]) {
		p.progressEvery = n
	}
}

// WithProgress registers a callback invoked alongside progress logging.
func WithProgress[T any](fn func(pages, items int)) Option[T] {
	return func(p *Paginator[T]) {
		p.onProgress = fn
	}
}

// WithStopWhen stops the walk after a page for which fn returns true.
// Listings sorted newest-first use this to stop at the since boundary.
func WithStopWhen[T any](fn func(items []T) bool) Option[T] {
	return func(p *Paginator[T]) {
		p.stopWhen = fn
	}
}

// NewOffset creates a Paginator over page-numbered listings.
func NewOffset[T any](label string, fetch PageFunc[T], opts ...Option[T]) *Paginator[T] {
	return newPaginator(label, StyleOffset, fetch, opts)
}

// NewCursor creates a Paginator over cursor-continued listings.
func NewCursor[T any](label string, fetch PageFunc[T], opts ...Option[T]) *Paginator[T] {
	return newPaginator(label, StyleCursor, fetch, opts)
}

func newPaginator[T any](label string, style Style, fetch PageFunc[T], opts []Option[T]) *Paginator[T] {
	p := &Paginator[T]{
		label:         label,
		style:         style,
		fetch:         fetch,
		perPage:       constants.DefaultPageSize,
		maxPages:      constants.DefaultMaxPages,
		progressEvery: constants.DefaultProgressEvery,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pages lazily yields each fetched page. The first page is yielded even
// when empty so callers can tell "zero items" from "not fetched". On error
// the error is yielded once and the sequence ends.
func (p *Paginator[T]) Pages(ctx context.Context) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		req := PageRequest{Page: p.startPage, PerPage: p.perPage, Cursor: p.startCursor}
		fetched, items := 0, 0

		for {
			if err := ctx.Err(); err != nil {
				yield(Page[T]{}, err)
				return
			}

			page, err := p.fetch(ctx, req)
			if err != nil {
				yield(Page[T]{}, err)
				return
			}
			page.Number = req.Page
			fetched++
			items += len(page.Items)

			if p.progressEvery > 0 && fetched%p.progressEvery == 0 {
				log.Info("pagination progress", "label", p.label, "pages", fetched, "items", items)
				if p.onProgress != nil {
					p.onProgress(fetched, items)
				}
			}

			if !yield(page, nil) {
				return
			}

			if p.done(page, fetched) {
				log.Debug("pagination finished", "label", p.label, "style", p.style, "pages", fetched, "items", items)
				return
			}

			req.Page++
			req.Cursor = page.NextCursor
		}
	}
}

func (p *Paginator[T]) done(page Page[T], fetched int) bool {
	if p.maxPages > 0 && fetched >= p.maxPages {
		log.Debug("pagination page cap reached", "label", p.label, "maxPages", p.maxPages)
		return true
	}
	if p.stopWhen != nil && p.stopWhen(page.Items) {
		return true
	}
	switch p.style {
	case StyleCursor:
		return !page.HasMore || page.NextCursor == ""
	default:
		return !page.HasMore || max(len(page.Items), page.Raw) < p.perPage
	}
}

// Collect drains every page into a single slice. On error the items
// gathered so far are discarded.
func (p *Paginator[T]) Collect(ctx context.Context) ([]T, error) {
	var all []T
	for page, err := range p.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
	}
	if all == nil {
		all = []T{}
	}
	return all, nil
}
