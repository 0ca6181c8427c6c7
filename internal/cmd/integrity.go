package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levelcode/teamfabric/internal/status"
	"github.com/levelcode/teamfabric/internal/util"
)

var integrityRepair bool

var integrityCmd = &cobra.Command{
	Use:   "integrity <team>",
	Short: "Check a team's on-disk state for problems",
	Long: `Scan one team for integrity issues: a missing or corrupt config,
unparseable task files, inboxes without a matching member, and leftover
lock files. Exits nonzero when issues are found.

With --repair, a missing or corrupt team config is rebuilt from the
surviving member and task files before re-checking.`,
	Args: cobra.ExactArgs(1),
	RunE: runIntegrity,
}

func init() {
	rootCmd.AddCommand(integrityCmd)
	integrityCmd.Flags().BoolVar(&integrityRepair, "repair", false, "rebuild a missing or corrupt team config")
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	teamName := args[0]

	st, _, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	engine := newEngine(st, logger)
	out := cmd.OutOrStdout()

	if integrityRepair {
		cfg, err := engine.RepairTeamConfig(teamName)
		if err != nil {
			return fmt.Errorf("repair team config: %w", err)
		}
		fmt.Fprintf(out, "Config for %q verified: phase %s, %s.\n",
			cfg.Name, cfg.Phase, util.Pluralize(len(cfg.Members), "member"))
	}

	issues, err := engine.ValidateTeamIntegrity(teamName)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		fmt.Fprintf(out, "Team %q: integrity clean.\n", teamName)
		return nil
	}

	for _, issue := range issues {
		fmt.Fprintln(out, status.FormatIssue(issue, !plainOutput))
	}
	return fmt.Errorf("%s found", util.Pluralize(len(issues), "integrity issue"))
}
