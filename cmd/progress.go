package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/pipeline"
	"github.com/spiffcs/devexport/internal/tui"
)

// exportRuntime bundles the TUI state threaded through the export command.
// Pipeline events are translated into task updates; without a TUI the
// pipeline's own progress log lines are used instead.
type exportRuntime struct {
	useTUI  bool
	tracker bool
	events  chan tui.Event
	tuiDone chan error

	repoTotal    int
	repoSkipped  int
	repoReplayed int
	repoRecords  int
	pageSkipped  int
	pageRecords  int
	unitsClosed  bool
	now          func() time.Time
}

func newExportRuntime(useTUI, tracker bool) *exportRuntime {
	return &exportRuntime{useTUI: useTUI, tracker: tracker, now: time.Now}
}

// startTUI initializes and starts the TUI goroutine if TUI mode is enabled.
func (rt *exportRuntime) startTUI() {
	if !rt.useTUI {
		return
	}
	tasks := tui.DefaultTasks()
	if rt.tracker {
		tasks = tui.TrackerTasks()
	}
	rt.events = make(chan tui.Event, 100)
	rt.tuiDone = make(chan error, 1)
	go func() {
		rt.tuiDone <- tui.Run(rt.events, tui.WithTasks(tasks))
	}()
}

// close closes the event channel and waits for the TUI to finish.
func (rt *exportRuntime) close() {
	if rt.events == nil {
		return
	}
	close(rt.events)
	<-rt.tuiDone
	rt.events = nil
}

func (rt *exportRuntime) sendEvent(task tui.TaskID, status tui.TaskStatus, opts ...tui.TaskEventOption) {
	tui.SendTaskEvent(rt.events, task, status, opts...)
}

// observer returns the pipeline observer, or nil without a TUI.
func (rt *exportRuntime) observer() func(pipeline.Event) {
	if !rt.useTUI {
		return nil
	}
	return rt.observe
}

func (rt *exportRuntime) observe(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventDiscovered:
		rt.repoTotal = e.Total
		rt.sendEvent(tui.TaskDiscover, tui.StatusComplete, tui.WithMessage(plural(e.Total, "repository", "repositories")))
		if e.Total == 0 {
			rt.closeUnits()
			return
		}
		rt.sendEvent(tui.TaskUnits, tui.StatusRunning, tui.WithProgress(0), tui.WithMessage(fmt.Sprintf("0/%d", e.Total)))

	case pipeline.EventUnitStarted:
		rt.sendEvent(tui.TaskUnits, tui.StatusRunning,
			tui.WithProgress(ratio(e.Done, e.Total)),
			tui.WithMessage(fmt.Sprintf("%d/%d", e.Done, e.Total)),
			tui.WithUnit(repoName(e.Unit)),
			rt.repoCounters())

	case pipeline.EventUnitDone:
		rt.repoRecords += e.Records
		if e.Replayed {
			rt.repoReplayed++
		}
		rt.sendEvent(tui.TaskUnits, tui.StatusRunning,
			tui.WithProgress(ratio(e.Done, e.Total)),
			tui.WithMessage(fmt.Sprintf("%d/%d", e.Done, e.Total)),
			rt.repoCounters())

	case pipeline.EventUnitSkipped:
		if strings.HasPrefix(e.Unit, "github:") {
			rt.repoSkipped++
			rt.sendEvent(tui.TaskUnits, tui.StatusRunning, rt.repoCounters())
		} else {
			rt.pageSkipped++
		}

	case pipeline.EventTrackerPage:
		rt.closeUnits()
		rt.pageRecords += e.Records
		msg := fmt.Sprintf("page %d", e.Done)
		progress := 0.0
		if e.Total > 0 {
			msg = fmt.Sprintf("page %d/%d", e.Done, e.Total)
			progress = ratio(e.Done, e.Total)
		}
		rt.sendEvent(tui.TaskTracker, tui.StatusRunning,
			tui.WithProgress(progress),
			tui.WithMessage(msg),
			tui.WithUnit(e.Unit),
			tui.WithRecords(rt.pageRecords))

	case pipeline.EventRetry:
		tui.SendEvent(rt.events, tui.RetryEvent{Op: e.Unit, Wait: e.Wait, Until: rt.now().Add(e.Wait)})

	case pipeline.EventWriting:
		rt.closeUnits()
		if rt.tracker {
			status := tui.StatusComplete
			if rt.pageSkipped > 0 {
				status = tui.StatusSkipped
			}
			rt.sendEvent(tui.TaskTracker, status, tui.WithRecords(rt.pageRecords), tui.WithSkipped(rt.pageSkipped))
		}
		rt.sendEvent(tui.TaskWrite, tui.StatusRunning, tui.WithMessage(e.Unit))
	}
}

// closeUnits marks the repository task finished once the pipeline has
// moved past it.
func (rt *exportRuntime) closeUnits() {
	if rt.unitsClosed {
		return
	}
	rt.unitsClosed = true
	msg := fmt.Sprintf("%d/%d", rt.repoTotal-rt.repoSkipped, rt.repoTotal)
	rt.sendEvent(tui.TaskUnits, tui.StatusComplete, tui.WithMessage(msg), rt.repoCounters())
}

// repoCounters carries the repository task's running totals.
func (rt *exportRuntime) repoCounters() tui.TaskEventOption {
	return func(e *tui.TaskEvent) {
		e.Records = rt.repoRecords
		e.Replayed = rt.repoReplayed
		e.Skipped = rt.repoSkipped
	}
}

func repoName(unit string) string {
	return strings.TrimPrefix(unit, "github:")
}

// finish reports the run outcome on the write task and stops the TUI.
func (rt *exportRuntime) finish(err error) {
	if err != nil {
		rt.sendEvent(tui.TaskWrite, tui.StatusError, tui.WithError(err))
	} else {
		rt.sendEvent(tui.TaskWrite, tui.StatusComplete)
	}
	rt.close()
}

func ratio(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
