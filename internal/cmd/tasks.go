package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/levelcode/teamfabric/internal/status"
	"github.com/levelcode/teamfabric/internal/team"
	"github.com/levelcode/teamfabric/internal/util"
)

var tasksStatus string

var tasksCmd = &cobra.Command{
	Use:   "tasks <team>",
	Short: "List a team's tasks",
	Long: `List the tasks on a team's board, ordered by priority then id.
Use --status to show only tasks in one state (pending, in_progress,
completed, blocked).`,
	Args: cobra.ExactArgs(1),
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by task status")
}

func runTasks(cmd *cobra.Command, args []string) error {
	st, _, logger, err := openStore()
	if err != nil {
		return err
	}
	defer logger.Close()

	tasks, err := st.ListTasks(args[0])
	if err != nil {
		return err
	}

	if tasksStatus != "" {
		want := team.TaskStatus(tasksStatus)
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Status == want {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
		return nil
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := tasks[i].Priority.Rank(), tasks[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		if len(tasks[i].ID) != len(tasks[j].ID) {
			return len(tasks[i].ID) < len(tasks[j].ID)
		}
		return tasks[i].ID < tasks[j].ID
	})

	out := cmd.OutOrStdout()
	for _, t := range tasks {
		row := fmt.Sprintf("#%s %s %s  %s",
			t.ID,
			util.PadANSI(string(t.Status), 11),
			util.PadANSI(string(t.Priority), 8),
			t.Subject)
		if len(t.BlockedBy) > 0 {
			row += fmt.Sprintf("  blocked by %s", strings.Join(t.BlockedBy, ","))
		}
		if t.Owner != "" {
			row += "  @" + t.Owner
		}
		fmt.Fprintln(out, util.TruncateANSI(row, status.DefaultWidth))
	}
	return nil
}
