package tui

import "time"

// TaskID identifies a stage of an export run.
type TaskID int

const (
	TaskAuth     TaskID = iota // Checking credentials
	TaskDiscover               // Listing repositories per owner
	TaskUnits                  // Exporting repository units
	TaskTracker                // Exporting tracker pages
	TaskWrite                  // Assembling and writing the snapshot
)

// TaskStatus is the state of a stage.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusRunning
	StatusComplete
	StatusError
	StatusSkipped
)

// Event is anything the export command feeds the display.
type Event interface {
	isEvent()
}

// TaskEvent updates one stage. Zero-valued counters leave the stage's
// current values in place, since counts only grow during a run.
type TaskEvent struct {
	Task     TaskID
	Status   TaskStatus
	Message  string  // e.g. "12/30"
	Unit     string  // unit being exported, e.g. "acme/api" or "jira:ENG:page-3"
	Records  int     // records exported by the stage so far
	Replayed int     // units taken from the checkpoint
	Skipped  int     // units skipped after failing
	Progress float64 // 0.0 to 1.0
	Error    error
}

func (TaskEvent) isEvent() {}

// RetryEvent reports a backoff wait before a retried call.
type RetryEvent struct {
	Op    string
	Wait  time.Duration
	Until time.Time
}

func (RetryEvent) isEvent() {}

// DoneEvent signals that all work is complete.
type DoneEvent struct{}

func (DoneEvent) isEvent() {}
