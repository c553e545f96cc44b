package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/spiffcs/devexport/internal/model"
)

// TableFormatter formats output for a terminal
type TableFormatter struct{}

const (
	colUnit   = 36
	colClass  = 12
	colReason = 60
)

// hyperlink creates a clickable terminal hyperlink using OSC 8
func hyperlink(text, url string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return text
	}
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

// fileLink links a local path when it resolves.
func fileLink(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return hyperlink(path, "file://"+abs)
}

// cell truncates s to width display columns and pads it.
func cell(s string, width int) string {
	s = runewidth.Truncate(strings.ReplaceAll(s, "\n", " "), width, "...")
	return runewidth.FillRight(s, width)
}

func statusLine(s model.RunSummary) string {
	switch {
	case s.Aborted:
		return color.RedString("✗ Export aborted")
	case s.HasSkipped():
		return color.YellowString("△ Export completed with %d skipped unit(s)", len(s.Skipped))
	default:
		return color.GreenString("✓ Export complete")
	}
}

// FormatSummary outputs a summary as aligned text
func (f *TableFormatter) FormatSummary(s model.RunSummary, w io.Writer) error {
	fmt.Fprintln(w, statusLine(s))
	if s.Reason != "" {
		fmt.Fprintf(w, "  %s\n", color.RedString(s.Reason))
	}
	fmt.Fprintln(w)

	units := fmt.Sprintf("%d total, %d exported", s.Total, s.Completed)
	if s.Replayed > 0 {
		units += fmt.Sprintf(" (%d from checkpoint)", s.Replayed)
	}
	if len(s.Skipped) > 0 {
		units += ", " + color.YellowString("%d skipped", len(s.Skipped))
	}
	fmt.Fprintf(w, "  %-10s %s\n", "Units", units)

	if !s.Aborted {
		c := s.Counts
		fmt.Fprintf(w, "  %-10s %d pull requests, %d commits, %d reviews, %d issues\n",
			"Records", c.PullRequests, c.Commits, c.Reviews, c.Issues)
		fmt.Fprintf(w, "  %-10s %d (%d bot records excluded)\n", "People", c.Contributors, c.BotsExcluded)
		fmt.Fprintf(w, "  %-10s %s\n", "Output", fileLink(s.Output))
	}
	if s.Duration > 0 {
		fmt.Fprintf(w, "  %-10s %s\n", "Elapsed", formatElapsed(s.Duration))
	}

	if len(s.Skipped) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	bold := color.New(color.Bold)
	bold.Fprintf(w, "  %s  %s  %s\n", cell("Unit", colUnit), cell("Class", colClass), "Reason")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", colUnit+colClass+colReason+4))
	for _, u := range s.Skipped {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cell(u.Unit, colUnit),
			color.YellowString(cell(u.Class, colClass)),
			runewidth.Truncate(strings.ReplaceAll(u.Reason, "\n", " "), colReason, "..."))
	}
	return nil
}

// FormatUnits outputs planned unit ids one per line
func (f *TableFormatter) FormatUnits(units []string, w io.Writer) error {
	if len(units) == 0 {
		fmt.Fprintln(w, "No units in scope.")
		return nil
	}
	fmt.Fprintf(w, "%d unit(s) would be exported:\n", len(units))
	for _, u := range units {
		fmt.Fprintf(w, "  %s\n", u)
	}
	return nil
}

// formatElapsed renders a duration compactly: "850ms", "42s", "3m12s", "1h05m".
func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
