package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <team>",
	Short: "Archive a team's state and remove it",
	Long: `Move a team's config, tasks, and inboxes into a timestamped
directory under the fabric archive, then remove the live team. The
archived copy can be inspected or restored by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	st, _, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	dest, err := newEngine(st, logger).ArchiveTeam(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Archived team %q to %s\n", args[0], dest)
	return nil
}
