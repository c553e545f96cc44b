package model

import "time"

// Snapshot is the exported document.
type Snapshot struct {
	Metadata     Metadata      `json:"metadata"`
	PullRequests []PullRequest `json:"pullRequests"`
	Commits      []Commit      `json:"commits"`
	Reviews      []Review      `json:"reviews"`
	Issues       []Issue       `json:"issues"`
	Contributors []Contributor `json:"contributors"`
}

// Metadata describes how and when a snapshot was produced.
type Metadata struct {
	ExportID      string     `json:"exportId"`
	ExportedAt    time.Time  `json:"exportedAt"`
	SchemaVersion string     `json:"schemaVersion"`
	Scope         Scope      `json:"scope"`
	Since         *time.Time `json:"since"`
	Units         UnitStats  `json:"units"`
	Counts        Counts     `json:"counts"`
}

// Scope is the configured export scope.
type Scope struct {
	Owners       []string `json:"owners"`
	Repositories []string `json:"repositories"`
	Tracker      *string  `json:"tracker"`
}

// UnitStats accounts for every unit of work in the run.
type UnitStats struct {
	Total    int           `json:"total"`
	Exported int           `json:"exported"`
	Skipped  []SkippedUnit `json:"skipped"`
}

// SkippedUnit is a unit that contributed nothing and why.
type SkippedUnit struct {
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
	Class  string `json:"class"`
}

// Counts summarizes collection sizes.
type Counts struct {
	PullRequests int `json:"pullRequests"`
	Commits      int `json:"commits"`
	Reviews      int `json:"reviews"`
	Issues       int `json:"issues"`
	Contributors int `json:"contributors"`
	BotsExcluded int `json:"botsExcluded"`
}

// RunSummary is the terminal report of an export run.
type RunSummary struct {
	Total     int
	Completed int
	Replayed  int
	Skipped   []SkippedUnit
	Resumed   bool
	Aborted   bool
	Reason    string
	Output    string
	Counts    Counts
	Duration  time.Duration
}

// HasSkipped reports whether any unit was skipped.
func (s RunSummary) HasSkipped() bool {
	return len(s.Skipped) > 0
}
