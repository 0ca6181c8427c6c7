package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levelcode/teamfabric/internal/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <team>",
	Short: "Show a team's status report",
	Long: `Show a full status report for one team: phase, uptime, members with
their current tasks, the task board, and any integrity issues.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output the report as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, _, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	report, err := newBuilder(st, logger).Build(args[0])
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if plainOutput {
		fmt.Fprint(cmd.OutOrStdout(), status.RenderPlain(report, status.DefaultWidth))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), status.Render(report, status.DefaultWidth))
	}
	return nil
}
