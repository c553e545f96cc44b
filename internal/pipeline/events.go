package pipeline

import "time"

// EventKind identifies a progress event.
type EventKind int

const (
	// EventDiscovered carries the number of planned repository units in Total.
	EventDiscovered EventKind = iota
	EventUnitStarted
	EventUnitDone
	EventUnitSkipped
	EventTrackerPage
	EventRetry
	EventWriting
)

// Event reports run progress. Done and Total count repository units, or
// tracker pages for EventTrackerPage. Records is the record count of a
// finished unit or page.
type Event struct {
	Kind     EventKind
	Unit     string
	Done     int
	Total    int
	Records  int
	Replayed bool
	Wait     time.Duration
	Err      error
}

// WithObserver registers fn for progress events. fn is called on the
// goroutine running Run and must not block.
func WithObserver(fn func(Event)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

func (p *Pipeline) emit(e Event) {
	if p.observer != nil {
		p.observer(e)
	}
}
