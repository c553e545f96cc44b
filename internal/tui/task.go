package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-runewidth"
)

// maxUnitWidth bounds the current-unit column so long repository names do
// not wrap the line.
const maxUnitWidth = 32

// Task is one stage of the export with its running counters.
type Task struct {
	ID       TaskID
	Name     string
	Status   TaskStatus
	Message  string
	Unit     string
	Records  int
	Replayed int
	Skipped  int
	Progress float64
	Error    error
}

// NewTask creates a pending stage.
func NewTask(id TaskID, name string) Task {
	return Task{ID: id, Name: name, Status: StatusPending}
}

// apply merges an event into the stage.
func (t *Task) apply(e TaskEvent) {
	t.Status = e.Status
	if e.Message != "" {
		t.Message = e.Message
	}
	t.Unit = e.Unit
	t.Records = max(t.Records, e.Records)
	t.Replayed = max(t.Replayed, e.Replayed)
	t.Skipped = max(t.Skipped, e.Skipped)
	if e.Progress > 0 {
		t.Progress = e.Progress
	}
	if e.Error != nil {
		t.Error = e.Error
	}
}

// View renders the stage on one line: icon, name, progress, the unit in
// flight, then record and unit counters.
func (t Task) View(spinnerFrame string, prog progress.Model) string {
	name := taskNameStyle.Render(t.Name)
	if t.Status == StatusPending {
		name = taskDimStyle.Render(t.Name)
	}
	parts := []string{" ", StatusIcon(t.Status, spinnerFrame), name}

	running := t.Status == StatusRunning
	if running && t.Progress > 0 {
		parts = append(parts, prog.ViewAs(t.Progress), fmt.Sprintf("%d%%", int(t.Progress*100)))
	}
	if t.Message != "" {
		parts = append(parts, messageStyle.Render(t.Message))
	}
	if running && t.Unit != "" {
		parts = append(parts, unitStyle.Render(runewidth.Truncate(t.Unit, maxUnitWidth, "…")))
	}

	var counters []string
	if t.Records > 0 {
		counters = append(counters, recordStyle.Render(plural(t.Records, "record", "records")))
	}
	if t.Replayed > 0 {
		counters = append(counters, replayStyle.Render(fmt.Sprintf("%d resumed", t.Replayed)))
	}
	if t.Skipped > 0 {
		counters = append(counters, warnStyle.Render(fmt.Sprintf("%d skipped", t.Skipped)))
	}
	if len(counters) > 0 {
		parts = append(parts, messageStyle.Render("·"), strings.Join(counters, messageStyle.Render(", ")))
	}

	if t.Error != nil {
		parts = append(parts, errorStyle.Render(t.Error.Error()))
	}
	return strings.Join(parts, " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
