package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levelcode/teamfabric/internal/status"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List all teams",
	Long: `List every team under the fabric root with its phase, member count,
and task count. The last-active team is marked with an asterisk.`,
	RunE: runTeams,
}

func init() {
	rootCmd.AddCommand(teamsCmd)
}

func runTeams(cmd *cobra.Command, args []string) error {
	st, _, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	summaries, err := newBuilder(st, logger).Summaries()
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), status.RenderSummaries(summaries, status.DefaultWidth, !plainOutput))
	return nil
}
