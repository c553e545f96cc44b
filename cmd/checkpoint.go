package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spiffcs/devexport/config"
	"github.com/spiffcs/devexport/internal/checkpoint"
	"github.com/spiffcs/devexport/internal/constants"
)

// NewCmdCheckpoint creates the checkpoint command with subcommands.
func NewCmdCheckpoint(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or discard the export checkpoint",
	}

	cmd.PersistentFlags().StringVar(&opts.Checkpoint, "checkpoint", "", "Checkpoint path (default from config, then "+constants.DefaultCheckpointFile+")")

	cmd.AddCommand(newCmdCheckpointStatus(opts))
	cmd.AddCommand(newCmdCheckpointClear(opts))

	return cmd
}

func newCmdCheckpointStatus(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the units recorded in the checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := checkpointManager(opts)
			if err != nil {
				return err
			}
			return printCheckpointStatus(m, cmd.OutOrStdout())
		},
	}
}

func newCmdCheckpointClear(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint so the next export starts fresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := checkpointManager(opts)
			if err != nil {
				return err
			}
			if err := m.Clear(); err != nil {
				return fmt.Errorf("failed to clear checkpoint: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint cleared: %s\n", m.Path())
			return nil
		},
	}
}

func checkpointManager(opts *Options) (*checkpoint.Manager, error) {
	path := opts.Checkpoint
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.Checkpoint
	}
	return checkpoint.NewManager(path), nil
}

func printCheckpointStatus(m *checkpoint.Manager, w io.Writer) error {
	cp, err := m.Read()
	if err != nil {
		return err
	}
	if cp == nil {
		fmt.Fprintf(w, "No checkpoint at %s. The next export starts fresh.\n", m.Path())
		return nil
	}

	records := 0
	for _, u := range cp.Units {
		records += u.RecordCount()
	}

	fmt.Fprintf(w, "Checkpoint: %s\n", m.Path())
	fmt.Fprintf(w, "  Owners:      %s\n", listOrNone(cp.Scope.Owners))
	if len(cp.Scope.Repos) > 0 {
		fmt.Fprintf(w, "  Repos:       %s\n", strings.Join(cp.Scope.Repos, ", "))
	}
	fmt.Fprintf(w, "  Since:       %s\n", valueOrNone(cp.Scope.Since))
	if cp.Scope.Tracker != "" {
		fmt.Fprintf(w, "  Tracker:     %s\n", cp.Scope.Tracker)
	}
	fmt.Fprintf(w, "  Units done:  %d\n", len(cp.CompletedUnits))
	fmt.Fprintf(w, "  Records:     %d\n", records)
	fmt.Fprintf(w, "  Started:     %s\n", cp.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated:     %s\n", cp.UpdatedAt.Format(time.RFC3339))
	if len(cp.CompletedUnits) > 0 {
		fmt.Fprintf(w, "  Last unit:   %s\n", cp.CompletedUnits[len(cp.CompletedUnits)-1])
	}
	return nil
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func valueOrNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
