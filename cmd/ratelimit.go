package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spiffcs/devexport/config"
	"github.com/spiffcs/devexport/internal/ghclient"
	"github.com/spiffcs/devexport/internal/jira"
)

// NewCmdRateLimit creates the ratelimit command.
func NewCmdRateLimit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Check API quota and credentials",
		Long: `Display current GitHub API rate limit status including remaining quota and
reset time, and verify the Jira credentials when a tracker is configured.`,
		RunE: runRateLimitStatus,
	}
	cmd.AddCommand(NewCmdRateLimitStatus())
	return cmd
}

// NewCmdRateLimitStatus creates the ratelimit status subcommand.
func NewCmdRateLimitStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current rate limit status",
		Long:  `Display the current GitHub API rate limit status for core, search and GraphQL APIs.`,
		RunE:  runRateLimitStatus,
	}
}

func runRateLimitStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	token := cfg.GetGitHubToken()
	if token == "" {
		return fmt.Errorf("GitHub token not configured. Set the GITHUB_TOKEN environment variable")
	}

	ctx := cmd.Context()
	var opts []ghclient.Option
	if url := cfg.GetGitHubAPIURL(); url != "" {
		opts = append(opts, ghclient.WithBaseURL(url))
	}
	client, err := ghclient.NewClient(ctx, token, opts...)
	if err != nil {
		return err
	}

	var (
		limits  *gh.RateLimits
		jiraErr error
		tracker string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		limits, err = client.RateLimits(gctx)
		return err
	})
	if cfg.JiraEnabled() {
		g.Go(func() error {
			tracker, jiraErr = checkJira(gctx, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printRateLimits(w, limits, time.Now())
	if cfg.JiraEnabled() {
		fmt.Fprintln(w)
		if jiraErr != nil {
			fmt.Fprintf(w, "Jira:       %v\n", jiraErr)
		} else {
			fmt.Fprintf(w, "Jira:       credentials ok (%s)\n", tracker)
		}
	}
	return nil
}

func checkJira(ctx context.Context, cfg *config.Config) (string, error) {
	email, token := cfg.GetJiraCredentials()
	client, err := jira.NewClient(jira.Config{
		URL:      cfg.GetJiraURL(),
		Email:    email,
		APIToken: token,
		Project:  cfg.Jira.Project,
		JQL:      cfg.Jira.JQL,
	})
	if err != nil {
		return "", err
	}
	if err := client.CheckAuth(ctx); err != nil {
		return "", err
	}
	return client.Name(), nil
}

func printRateLimits(w io.Writer, limits *gh.RateLimits, now time.Time) {
	fmt.Fprintln(w, "GitHub API Rate Limits:")
	fmt.Fprintln(w)

	line := func(label string, r *gh.Rate) {
		if r == nil {
			return
		}
		resetIn := r.Reset.Time.Sub(now).Round(time.Second)
		if resetIn < 0 {
			resetIn = 0
		}
		fmt.Fprintf(w, "%-11s %d/%d remaining (resets in %s)\n", label, r.Remaining, r.Limit, resetIn)
	}
	line("Core API:", limits.Core)
	line("Search API:", limits.Search)
	line("GraphQL:", limits.GraphQL)
}
