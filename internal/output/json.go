package output

import (
	"encoding/json"
	"io"

	"github.com/spiffcs/devexport/internal/model"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// jsonSummary is the stable JSON shape of a run summary.
type jsonSummary struct {
	Status     string              `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Output     string              `json:"output,omitempty"`
	Resumed    bool                `json:"resumed"`
	DurationMs int64               `json:"durationMs"`
	Units      jsonUnits           `json:"units"`
	Counts     model.Counts        `json:"counts"`
	Skipped    []model.SkippedUnit `json:"skipped"`
}

type jsonUnits struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Replayed  int `json:"replayed"`
	Skipped   int `json:"skipped"`
}

// FormatSummary outputs a summary as JSON
func (f *JSONFormatter) FormatSummary(s model.RunSummary, w io.Writer) error {
	skipped := s.Skipped
	if skipped == nil {
		skipped = []model.SkippedUnit{}
	}
	return f.encode(w, jsonSummary{
		Status:     Status(s),
		Reason:     s.Reason,
		Output:     s.Output,
		Resumed:    s.Resumed,
		DurationMs: s.Duration.Milliseconds(),
		Units: jsonUnits{
			Total:     s.Total,
			Completed: s.Completed,
			Replayed:  s.Replayed,
			Skipped:   len(s.Skipped),
		},
		Counts:  s.Counts,
		Skipped: skipped,
	})
}

// FormatUnits outputs planned unit ids as a JSON array
func (f *JSONFormatter) FormatUnits(units []string, w io.Writer) error {
	if units == nil {
		units = []string{}
	}
	return f.encode(w, units)
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}
