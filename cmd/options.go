package cmd

// Options holds the shared command-line options for the devexport CLI.
// Empty values fall back to the config file.
type Options struct {
	Owners        []string
	Repos         []string
	Since         string
	Output        string
	Checkpoint    string
	MetricsFile   string
	SummaryFormat string
	LogFormat     string
	Verbosity     int
	DryRun        bool
	NoCache       bool
	TUI           *bool // nil = auto-detect, true = force TUI, false = disable TUI

	// Profiling options
	CPUProfile string
	MemProfile string
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// NewOptions creates a new Options with defaults and applies any provided options.
func NewOptions(opts ...Option) *Options {
	o := &Options{LogFormat: "text"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithOwners sets the owners whose repositories are exported.
func WithOwners(owners ...string) Option {
	return func(o *Options) {
		o.Owners = owners
	}
}

// WithRepos sets explicit owner/name repositories.
func WithRepos(repos ...string) Option {
	return func(o *Options) {
		o.Repos = repos
	}
}

// WithSince sets the since filter (e.g., "30d", "2025-01-01").
func WithSince(since string) Option {
	return func(o *Options) {
		o.Since = since
	}
}

// WithOutput sets the snapshot path; "-" writes to stdout.
func WithOutput(path string) Option {
	return func(o *Options) {
		o.Output = path
	}
}

// WithCheckpoint sets the checkpoint file path.
func WithCheckpoint(path string) Option {
	return func(o *Options) {
		o.Checkpoint = path
	}
}

// WithDryRun lists the units that would be exported without fetching them.
func WithDryRun(dryRun bool) Option {
	return func(o *Options) {
		o.DryRun = dryRun
	}
}

// WithVerbosity sets the verbosity level.
func WithVerbosity(v int) Option {
	return func(o *Options) {
		o.Verbosity = v
	}
}

// WithTUI controls TUI mode (nil = auto-detect, true = force, false = disable).
func WithTUI(tui *bool) Option {
	return func(o *Options) {
		o.TUI = tui
	}
}
