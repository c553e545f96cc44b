package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spiffcs/devexport/internal/cache"
	"github.com/spiffcs/devexport/internal/constants"
)

// NewCmdCache creates the cache command with subcommands.
func NewCmdCache() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the pull request details cache",
	}

	cmd.AddCommand(newCmdCacheClear())
	cmd.AddCommand(newCmdCacheStats())

	return cmd
}

func newCmdCacheClear() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the pull request details cache",
		RunE:  runCacheClear,
	}
}

func newCmdCacheStats() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE:  runCacheStats,
	}
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	c, err := cache.NewCache()
	if err != nil {
		return fmt.Errorf("failed to access cache: %w", err)
	}

	if err := c.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
	return nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	c, err := cache.NewCache()
	if err != nil {
		return fmt.Errorf("failed to access cache: %w", err)
	}

	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Cache statistics (%s):\n", c.Dir())
	fmt.Fprintf(w, "  Pull request details (TTL: %s):\n", constants.DetailCacheTTL)
	fmt.Fprintf(w, "    Total: %d\n", stats.Total)
	fmt.Fprintf(w, "    Valid: %d\n", stats.Valid)
	fmt.Fprintf(w, "    Expired: %d\n", stats.Total-stats.Valid)
	fmt.Fprintf(w, "    Size: %.1f KiB\n", float64(stats.Bytes)/1024)
	return nil
}
