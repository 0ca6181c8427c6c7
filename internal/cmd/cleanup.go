package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var pruneHours int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <team>",
	Short: "Remove stale locks, orphaned inboxes, and old completed tasks",
	Long: `Clean up a team's leftovers: lock files older than the stale
threshold, inbox files whose agent is no longer on the roster, and
completed tasks past the prune age (moved to the completed/ archive,
not deleted).`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&pruneHours, "prune-hours", 0, "prune completed tasks older than this many hours (default from config)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	teamName := args[0]

	st, cfg, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	engine := newEngine(st, logger)

	pruneAge := cfg.PruneAge()
	if pruneHours > 0 {
		pruneAge = time.Duration(pruneHours) * time.Hour
	}

	locks, err := engine.CleanupStaleLocks(teamName, cfg.LockStale())
	if err != nil {
		return fmt.Errorf("cleanup stale locks: %w", err)
	}
	inboxes, err := engine.CleanupOrphanedInboxes(teamName)
	if err != nil {
		return fmt.Errorf("cleanup orphaned inboxes: %w", err)
	}
	pruned, err := engine.PruneCompletedTasks(teamName, pruneAge)
	if err != nil {
		return fmt.Errorf("prune completed tasks: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(locks)+len(inboxes)+len(pruned) == 0 {
		fmt.Fprintln(out, "No stale resources found.")
		return nil
	}

	printCleanupSection(out, "Stale Locks Removed", locks)
	printCleanupSection(out, "Orphaned Inboxes Removed", inboxes)
	printCleanupSection(out, "Completed Tasks Pruned", pruned)
	return nil
}

func printCleanupSection(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d)\n", title, len(items))
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, item := range items {
		fmt.Fprintf(out, "  %s\n", item)
	}
	fmt.Fprintln(out)
}
