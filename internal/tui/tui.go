package tui

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// NoTUIEnv disables the progress display when set to any value.
const NoTUIEnv = "DEVEXPORT_NO_TUI"

// ciEnvVars are set by the CI systems whose logs cannot render a live display.
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"JENKINS_URL",
	"TRAVIS",
	"CIRCLECI",
	"GITLAB_CI",
	"BUILDKITE",
}

// Run draws the export progress on stderr until the event channel is
// closed. stdout is left alone because it may carry the snapshot.
func Run(events <-chan Event, opts ...ModelOption) error {
	return RunTo(os.Stderr, events, opts...)
}

// RunTo is Run with an explicit output.
func RunTo(out io.Writer, events <-chan Event, opts ...ModelOption) error {
	_, err := tea.NewProgram(NewModel(events, opts...), tea.WithOutput(out)).Run()
	return err
}

// ShouldUseTUI reports whether stderr is an interactive terminal outside CI
// and the display has not been turned off.
func ShouldUseTUI() bool {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return false
	}
	if os.Getenv(NoTUIEnv) != "" {
		return false
	}
	for _, v := range ciEnvVars {
		if os.Getenv(v) != "" {
			return false
		}
	}
	return true
}

// SendEvent delivers e without blocking the export; when the display falls
// behind, the event is dropped and the next one catches it up.
func SendEvent(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}

// SendTaskEvent builds and sends a TaskEvent.
func SendTaskEvent(ch chan<- Event, task TaskID, status TaskStatus, opts ...TaskEventOption) {
	e := TaskEvent{Task: task, Status: status}
	for _, opt := range opts {
		opt(&e)
	}
	SendEvent(ch, e)
}

// TaskEventOption sets a field of a TaskEvent.
type TaskEventOption func(*TaskEvent)

// WithMessage sets the progress message, e.g. "3/12".
func WithMessage(msg string) TaskEventOption {
	return func(e *TaskEvent) { e.Message = msg }
}

// WithUnit names the unit being exported.
func WithUnit(unit string) TaskEventOption {
	return func(e *TaskEvent) { e.Unit = unit }
}

// WithRecords sets the number of records exported so far.
func WithRecords(n int) TaskEventOption {
	return func(e *TaskEvent) { e.Records = n }
}

// WithReplayed sets the number of units taken from the checkpoint.
func WithReplayed(n int) TaskEventOption {
	return func(e *TaskEvent) { e.Replayed = n }
}

// WithSkipped sets the number of skipped units.
func WithSkipped(n int) TaskEventOption {
	return func(e *TaskEvent) { e.Skipped = n }
}

// WithProgress sets the completed fraction.
func WithProgress(progress float64) TaskEventOption {
	return func(e *TaskEvent) { e.Progress = progress }
}

// WithError attaches the failure.
func WithError(err error) TaskEventOption {
	return func(e *TaskEvent) { e.Error = err }
}
