package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spiffcs/devexport/config"
	"github.com/spiffcs/devexport/internal/cache"
	"github.com/spiffcs/devexport/internal/checkpoint"
	"github.com/spiffcs/devexport/internal/classify"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/duration"
	"github.com/spiffcs/devexport/internal/ghclient"
	"github.com/spiffcs/devexport/internal/jira"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/metrics"
	"github.com/spiffcs/devexport/internal/output"
	"github.com/spiffcs/devexport/internal/pipeline"
	"github.com/spiffcs/devexport/internal/retry"
	"github.com/spiffcs/devexport/internal/source"
	"github.com/spiffcs/devexport/internal/tui"
)

// exportSettings is the export scope after merging flags over config.
type exportSettings struct {
	pipeline   pipeline.Config
	retry      config.RetrySettings
	checkpoint string
	apiURL     string
	bots       []string
	format     output.Format
	noCache    bool
	jira       *jira.Config
}

// NewCmdExport creates the export command.
func NewCmdExport(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export repository and tracker activity to a JSON snapshot",
		Long: `Discovers the repositories of the configured owners, exports their
pull requests, commits, reviews and issues one repository at a time, and
writes a single snapshot document.

A checkpoint is saved after every repository. Re-running with the same
owners, repositories and since filter resumes from it.

Exit status: 0 complete, 2 completed with skipped units, 1 aborted,
3 authentication failure, 130 interrupted.`,
		Example: `  devexport export --owner my-org --since 90d
  devexport export --repo my-org/api --repo my-org/web -o - > snapshot.json
  devexport export --owner my-org --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}

	addExportFlags(cmd, opts)
	return cmd
}

// addExportFlags adds the export-specific flags to a command.
func addExportFlags(cmd *cobra.Command, opts *Options) {
	f := cmd.Flags()
	f.StringSliceVar(&opts.Owners, "owner", nil, "Organization or user to export (repeatable; overrides config scope)")
	f.StringSliceVar(&opts.Repos, "repo", nil, "Repository as owner/name (repeatable; overrides config scope)")
	f.Var(&sinceFlag{dst: &opts.Since}, "since", "Only export activity since (e.g., 30d, 6mo, 2025-01-31)")
	f.StringVarP(&opts.Output, "output", "o", "", "Snapshot path, or - for stdout (default "+constants.DefaultOutputFile+")")
	f.StringVar(&opts.Checkpoint, "checkpoint", "", "Checkpoint path (default "+constants.DefaultCheckpointFile+")")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile when the run ends")
	f.Var(&summaryFormatFlag{dst: &opts.SummaryFormat}, "summary-format", "Run summary format (table, json, markdown)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "List the units that would be exported without fetching them")
	f.BoolVar(&opts.NoCache, "no-cache", false, "Do not read or write the pull request detail cache")

	// TUI flag with tri-state: nil = auto, true = force, false = disable
	f.Var(newTUIFlag(opts), "tui", "Enable/disable TUI progress (default: auto-detect)")
	f.Lookup("tui").NoOptDefVal = "true"

	f.StringVar(&opts.CPUProfile, "cpuprofile", "", "Write CPU profile to file")
	f.StringVar(&opts.MemProfile, "memprofile", "", "Write memory profile to file")
}

func runExport(cmd *cobra.Command, opts *Options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return &ExitError{Code: ExitAborted, Err: fmt.Errorf("failed to load config: %w", err)}
	}

	settings, err := resolveExport(cfg, opts, time.Now())
	if err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}

	prof := newProfiler(opts.CPUProfile, opts.MemProfile)
	if err := prof.Start(); err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}
	defer prof.Stop()

	rt := newExportRuntime(shouldUseTUI(opts), settings.jira != nil)
	if rt.useTUI {
		// Suppress logs during TUI to avoid interleaving with the display
		if err := initLogging(opts, io.Discard); err != nil {
			return &ExitError{Code: ExitAborted, Err: err}
		}
	}
	rt.startTUI()

	rec := metrics.New()
	res, runErr := execute(ctx, cfg, settings, rt, rec)
	rt.finish(runErr)
	if rt.useTUI {
		_ = initLogging(opts, cmd.ErrOrStderr())
	}

	if opts.MetricsFile != "" {
		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			log.Warn("could not write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if settings.pipeline.DryRun && runErr == nil {
		return output.NewFormatter(settings.format).FormatUnits(res.Units, cmd.OutOrStdout())
	}

	summary := res.Summary
	if err := output.NewFormatter(settings.format).FormatSummary(summary, cmd.ErrOrStderr()); err != nil {
		log.Warn("could not print summary", "error", err)
	}
	return exitError(ctx, summary, runErr)
}

// execute connects the configured sources and runs the pipeline. The
// result is never nil.
func execute(ctx context.Context, cfg *config.Config, s exportSettings, rt *exportRuntime, rec *metrics.Recorder) (*pipeline.Result, error) {
	failed := func(err error) (*pipeline.Result, error) {
		res := &pipeline.Result{}
		res.Summary.Output = s.pipeline.Output
		res.Summary.Aborted = true
		res.Summary.Reason = err.Error()
		return res, err
	}

	rt.sendEvent(tui.TaskAuth, tui.StatusRunning)

	var host source.Host
	if len(s.pipeline.Owners) > 0 || len(s.pipeline.Repos) > 0 {
		gh, err := connectGitHub(ctx, cfg.GetGitHubToken(), s.apiURL)
		if err != nil {
			rt.sendEvent(tui.TaskAuth, tui.StatusError, tui.WithError(err))
			return failed(err)
		}
		host = gh
	}

	var opts []pipeline.Option
	if s.jira != nil {
		tracker, err := connectJira(ctx, *s.jira)
		if err != nil {
			rt.sendEvent(tui.TaskAuth, tui.StatusError, tui.WithError(err))
			return failed(err)
		}
		opts = append(opts, pipeline.WithTracker(tracker))
		s.pipeline.TrackerScope = tracker.Scope() + " pageSize=" + strconv.Itoa(s.pipeline.TrackerPageSize)
	}
	rt.sendEvent(tui.TaskAuth, tui.StatusComplete)
	rt.sendEvent(tui.TaskDiscover, tui.StatusRunning)

	if host == nil && s.jira == nil {
		log.Warn("no owners, repositories or tracker configured")
	}

	opts = append(opts,
		pipeline.WithCheckpoint(checkpoint.NewManager(s.checkpoint)),
		pipeline.WithMetrics(rec),
		pipeline.WithBots(classify.NewBotDetector(s.bots...)),
		pipeline.WithObserver(rt.observer()),
		pipeline.WithRetryOptions(
			retry.WithMaxRetries(s.retry.MaxRetries),
			retry.WithNetworkBase(s.retry.NetworkBase),
			retry.WithRateLimitBase(s.retry.RateLimitBase),
			retry.WithMaxDelay(s.retry.MaxDelay),
		),
	)
	if c := openCache(s); c != nil {
		opts = append(opts, pipeline.WithCache(c))
	}

	res, err := pipeline.New(host, s.pipeline, opts...).Run(ctx)
	if res == nil {
		return failed(err)
	}
	return res, err
}

// connectGitHub creates the client and verifies the token before any unit
// is attempted.
func connectGitHub(ctx context.Context, token, apiURL string) (*ghclient.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: GitHub token not configured. Set the GITHUB_TOKEN environment variable", pipeline.ErrAuth)
	}

	var opts []ghclient.Option
	if apiURL != "" {
		opts = append(opts, ghclient.WithBaseURL(apiURL))
	}
	client, err := ghclient.NewClient(ctx, token, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrAborted, err)
	}

	login, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return nil, classifyConnectError(err)
	}
	log.Info("authenticated", "source", constants.SourceGitHub, "user", login)
	return client, nil
}

func connectJira(ctx context.Context, cfg jira.Config) (*jira.Client, error) {
	client, err := jira.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrAborted, err)
	}
	if err := client.CheckAuth(ctx); err != nil {
		return nil, classifyConnectError(err)
	}
	log.Info("authenticated", "source", constants.SourceJira, "tracker", client.Name())
	return client, nil
}

func classifyConnectError(err error) error {
	if _, class := retry.Classify(err); class == retry.ClassAuth {
		return fmt.Errorf("%w: %w", pipeline.ErrAuth, err)
	}
	return fmt.Errorf("%w: %w", pipeline.ErrAborted, err)
}

func openCache(s exportSettings) cache.Cacher {
	if s.pipeline.DryRun || s.noCache {
		return nil
	}
	c, err := cache.NewCache()
	if err != nil {
		log.Warn("failed to initialize cache", "error", err)
		return nil
	}
	return c
}

// resolveExport merges flags over config. Scope flags replace the
// configured scope as a whole: --repo alone does not also export the
// configured owners.
func resolveExport(cfg *config.Config, opts *Options, now time.Time) (exportSettings, error) {
	fetch := cfg.GetFetchSettings()

	owners, repos := cfg.Owners, cfg.Repos
	if len(opts.Owners) > 0 || len(opts.Repos) > 0 {
		owners, repos = opts.Owners, opts.Repos
	}

	sinceStr := firstNonEmpty(opts.Since, cfg.Since)
	var since time.Time
	if sinceStr != "" {
		var err error
		since, err = resolveSince(sinceStr, now)
		if err != nil {
			return exportSettings{}, err
		}
	}

	format, err := output.ParseFormat(firstNonEmpty(opts.SummaryFormat, cfg.DefaultFormat))
	if err != nil {
		return exportSettings{}, err
	}

	s := exportSettings{
		pipeline: pipeline.Config{
			Owners:          owners,
			Repos:           repos,
			ExcludeRepos:    cfg.ExcludeRepos,
			IncludeForks:    config.GetBool(cfg.IncludeForks, false),
			IncludeArchived: config.GetBool(cfg.IncludeArchived, false),
			IncludeIssues:   config.GetBool(cfg.IncludeIssues, true),
			Since:           since,
			PageSize:        fetch.PageSize,
			MaxPages:        fetch.MaxPages,
			BatchSize:       fetch.BatchSize,
			BatchPause:      fetch.BatchPause,
			ProgressEvery:   fetch.ProgressEvery,
			Output:          firstNonEmpty(opts.Output, cfg.Output, constants.DefaultOutputFile),
			DryRun:          opts.DryRun,
		},
		retry:      cfg.GetRetrySettings(),
		checkpoint: firstNonEmpty(opts.Checkpoint, cfg.Checkpoint, constants.DefaultCheckpointFile),
		apiURL:     cfg.GetGitHubAPIURL(),
		bots:       cfg.ExcludeAuthors,
		format:     format,
		noCache:    opts.NoCache,
	}

	if cfg.JiraEnabled() {
		email, token := cfg.GetJiraCredentials()
		s.jira = &jira.Config{
			URL:      cfg.GetJiraURL(),
			Email:    email,
			APIToken: token,
			Project:  cfg.Jira.Project,
			JQL:      cfg.Jira.JQL,
			Since:    since,
		}
		if cfg.Jira.PageSize != nil {
			s.pipeline.TrackerPageSize = *cfg.Jira.PageSize
		}
	}
	if s.pipeline.TrackerPageSize <= 0 {
		s.pipeline.TrackerPageSize = s.pipeline.PageSize
	}
	return s, nil
}

// resolveSince parses a since filter. Relative windows are anchored to the
// start of the current UTC day so a resumed run on the same day keeps the
// same checkpoint fingerprint.
func resolveSince(s string, now time.Time) (time.Time, error) {
	t, err := duration.ParseSince(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if isAbsoluteSince(s) {
		return t, nil
	}
	return t.Truncate(24 * time.Hour), nil
}

func isAbsoluteSince(s string) bool {
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
