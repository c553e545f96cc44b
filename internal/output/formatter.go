// Package output renders export run summaries for people and CI logs.
package output

import (
	"fmt"
	"io"

	"github.com/spiffcs/devexport/internal/model"
)

// Format represents the summary format
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatMarkdown:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("invalid summary format %q: use table, json, or markdown", s)
	}
}

// Formatter defines the interface for summary formatters
type Formatter interface {
	FormatSummary(summary model.RunSummary, w io.Writer) error
	FormatUnits(units []string, w io.Writer) error
}

// NewFormatter creates a formatter for the specified format
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Status names the outcome a summary describes.
func Status(s model.RunSummary) string {
	switch {
	case s.Aborted:
		return "aborted"
	case s.HasSkipped():
		return "completed with skipped units"
	default:
		return "complete"
	}
}
