package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/spiffcs/devexport/internal/model"
)

// MarkdownFormatter formats output as Markdown, e.g. for CI job summaries
type MarkdownFormatter struct{}

// FormatSummary outputs a summary as Markdown
func (f *MarkdownFormatter) FormatSummary(s model.RunSummary, w io.Writer) error {
	fmt.Fprintf(w, "## Export %s\n\n", Status(s))
	if s.Reason != "" {
		fmt.Fprintf(w, "> %s\n\n", s.Reason)
	}

	fmt.Fprintln(w, "| Units | Count |")
	fmt.Fprintln(w, "|---|---:|")
	fmt.Fprintf(w, "| Total | %d |\n", s.Total)
	fmt.Fprintf(w, "| Exported | %d |\n", s.Completed)
	fmt.Fprintf(w, "| Replayed from checkpoint | %d |\n", s.Replayed)
	fmt.Fprintf(w, "| Skipped | %d |\n\n", len(s.Skipped))

	if !s.Aborted {
		c := s.Counts
		fmt.Fprintln(w, "| Records | Count |")
		fmt.Fprintln(w, "|---|---:|")
		fmt.Fprintf(w, "| Pull requests | %d |\n", c.PullRequests)
		fmt.Fprintf(w, "| Commits | %d |\n", c.Commits)
		fmt.Fprintf(w, "| Reviews | %d |\n", c.Reviews)
		fmt.Fprintf(w, "| Issues | %d |\n", c.Issues)
		fmt.Fprintf(w, "| Contributors | %d |\n", c.Contributors)
		fmt.Fprintf(w, "| Bot records excluded | %d |\n\n", c.BotsExcluded)
	}

	if len(s.Skipped) > 0 {
		fmt.Fprintln(w, "### Skipped units")
		fmt.Fprintln(w)
		for _, u := range s.Skipped {
			fmt.Fprintf(w, "- `%s` (%s): %s\n", u.Unit, u.Class, escapeMarkdown(u.Reason))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// FormatUnits outputs planned unit ids as a Markdown list
func (f *MarkdownFormatter) FormatUnits(units []string, w io.Writer) error {
	fmt.Fprintf(w, "## Planned units (%d)\n\n", len(units))
	for _, u := range units {
		fmt.Fprintf(w, "- `%s`\n", u)
	}
	return nil
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}
