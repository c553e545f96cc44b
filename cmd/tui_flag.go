package cmd

import (
	"fmt"

	"github.com/spiffcs/devexport/internal/output"
	"github.com/spiffcs/devexport/internal/tui"
)

// tuiFlag implements pflag.Value for tri-state TUI flag.
type tuiFlag struct {
	opts *Options
}

func newTUIFlag(opts *Options) *tuiFlag {
	return &tuiFlag{opts: opts}
}

func (f *tuiFlag) String() string {
	if f.opts.TUI == nil {
		return "auto"
	}
	if *f.opts.TUI {
		return "true"
	}
	return "false"
}

func (f *tuiFlag) Set(s string) error {
	switch s {
	case "true", "1", "yes":
		v := true
		f.opts.TUI = &v
	case "false", "0", "no":
		v := false
		f.opts.TUI = &v
	case "auto":
		f.opts.TUI = nil
	default:
		return fmt.Errorf("invalid value %q: use true, false, or auto", s)
	}
	return nil
}

func (f *tuiFlag) Type() string {
	return "bool"
}

func (f *tuiFlag) IsBoolFlag() bool {
	return true
}

// shouldUseTUI determines whether to use TUI based on options.
func shouldUseTUI(opts *Options) bool {
	// Logs and the progress display share stderr
	if opts.Verbosity > 0 {
		return false
	}
	if opts.DryRun {
		return false
	}
	if opts.TUI != nil {
		return *opts.TUI
	}
	return tui.ShouldUseTUI()
}

// summaryFormatFlag validates --summary-format at parse time.
type summaryFormatFlag struct {
	dst *string
}

func (f *summaryFormatFlag) String() string {
	return *f.dst
}

func (f *summaryFormatFlag) Set(s string) error {
	if _, err := output.ParseFormat(s); err != nil {
		return err
	}
	*f.dst = s
	return nil
}

func (f *summaryFormatFlag) Type() string {
	return "format"
}
