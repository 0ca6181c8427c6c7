package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/levelcode/teamfabric/internal/analytics"
	"github.com/levelcode/teamfabric/internal/coordination"
	"github.com/levelcode/teamfabric/internal/event"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/mailbox"
	"github.com/levelcode/teamfabric/internal/phase"
	"github.com/levelcode/teamfabric/internal/store"
)

var phaseCmd = &cobra.Command{
	Use:   "phase <team> [next]",
	Short: "Show or advance a team's phase",
	Long: `Without a second argument, show the team's current phase and the
tools it unlocks. With one, advance the team to that phase. Phases only
move forward one step at a time: ` + phaseSequence() + `.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPhase,
}

func init() {
	rootCmd.AddCommand(phaseCmd)
}

func phaseSequence() string {
	all := phase.All()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.String()
	}
	return strings.Join(names, " → ")
}

func runPhase(cmd *cobra.Command, args []string) error {
	teamName := args[0]

	st, _, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		cfg, err := st.LoadTeamConfig(teamName)
		if err != nil {
			return err
		}
		if cfg == nil {
			return fmt.Errorf("team %q not found", teamName)
		}
		fmt.Fprintf(out, "Team %q is in phase %q.\n", teamName, cfg.Phase)
		if next, ok := cfg.Phase.Next(); ok {
			fmt.Fprintf(out, "Next phase: %s\n", next)
		}
		if tools := phase.PhaseTools(cfg.Phase); len(tools) > 0 {
			fmt.Fprintf(out, "Allowed tools: %s\n", strings.Join(tools, ", "))
		}
		return nil
	}

	next := phase.Phase(strings.ToLower(args[1]))
	if !next.IsValid() {
		return fmt.Errorf("unknown phase %q (valid: %s)", args[1], phaseSequence())
	}

	coord, err := newCoordinator(st, logger)
	if err != nil {
		return err
	}
	cfg, err := coord.AdvancePhase(teamName, next)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Team %q advanced to phase %q.\n", teamName, cfg.Phase)
	return nil
}

// newCoordinator wires a one-shot coordinator for commands that mutate
// team state. CLI invocations have no analytics backend, so events go to
// the bus only.
func newCoordinator(st *store.Store, logger *logging.Logger) (*coordination.Coordinator, error) {
	fabric := mailbox.New(st, mailbox.WithLogger(logger))
	emitter := event.NewEmitter(event.NewBus(), analytics.NopSink{})
	return coordination.New(coordination.Config{
		Store:   st,
		Fabric:  fabric,
		Emitter: emitter,
	}, coordination.WithLogger(logger))
}
