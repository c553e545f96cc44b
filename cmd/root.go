package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/spiffcs/devexport/internal/log"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := NewOptions()

	rootCmd := &cobra.Command{
		Use:   "devexport",
		Short: "Incremental developer activity export",
		Long: `A CLI tool that exports pull requests, commits, reviews and issues
from GitHub (and optionally Jira) into a single JSON snapshot.

Progress is checkpointed after every repository, so an interrupted
export resumes where it stopped when run again with the same scope.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initLogging(opts, cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(NewCmdExport(opts))
	rootCmd.AddCommand(NewCmdCheckpoint(opts))
	rootCmd.AddCommand(NewCmdConfig())
	rootCmd.AddCommand(NewCmdCache())
	rootCmd.AddCommand(NewCmdVersion())
	rootCmd.AddCommand(NewCmdRateLimit())

	return rootCmd
}

// initLogging configures the global logger from the verbosity and format flags.
func initLogging(opts *Options, w io.Writer) error {
	format, err := log.ParseFormat(opts.LogFormat)
	if err != nil {
		return err
	}
	log.Initialize(opts.Verbosity, w, log.WithFormat(format))
	return nil
}
