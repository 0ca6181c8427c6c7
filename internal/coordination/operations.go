package coordination

import (
	"slices"

	"github.com/levelcode/teamfabric/internal/discovery"
	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/mailbox"
	"github.com/levelcode/teamfabric/internal/phase"
	"github.com/levelcode/teamfabric/internal/team"
)

// requireTeam loads the team's config, turning the store's (nil, nil)
// missing-team convention into a typed not-found error.
func (c *Coordinator) requireTeam(teamName string) (*team.TeamConfig, error) {
	cfg, err := c.st.LoadTeamConfig(teamName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.NewTeamNotFoundError(teamName)
	}
	return cfg, nil
}

// gate checks one team-scoped tool against the team's current phase and
// returns the config so callers don't load it twice.
func (c *Coordinator) gate(tool, teamName string) (*team.TeamConfig, error) {
	cfg, err := c.requireTeam(teamName)
	if err != nil {
		return nil, err
	}
	if err := phase.CheckTool(tool, cfg.Phase); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateTeam creates a team, writes the last-active marker, and emits
// team.created.
//
// When callerAgentID names an agent that already belongs to a team, the
// team_create gate is checked against that team's phase. A caller with no
// current team is creating its first team and passes ungated.
func (c *Coordinator) CreateTeam(callerAgentID string, cfg *team.TeamConfig) error {
	if callerAgentID != "" {
		current, err := c.resolver.FindCurrentTeam(callerAgentID)
		if err != nil {
			return err
		}
		if current != nil {
			if err := phase.CheckTool("team_create", current.Phase); err != nil {
				return err
			}
		}
	}

	if err := c.st.CreateTeam(cfg); err != nil {
		return err
	}

	// Marker write is best-effort; the resolver falls back without it.
	c.st.SetLastActiveTeam(cfg.Name)

	c.emitter.EmitTeamCreated(cfg.Name, cfg.LeadAgentID, len(cfg.Members))
	return nil
}

// DeleteTeam removes a team and emits team.deleted. Gated on team_delete.
func (c *Coordinator) DeleteTeam(teamName string) error {
	if _, err := c.gate("team_delete", teamName); err != nil {
		return err
	}
	if err := c.st.DeleteTeam(teamName); err != nil {
		return err
	}
	c.emitter.EmitTeamDeleted(teamName)
	return nil
}

// SendMessage delivers one protocol message through the fabric. Gated on
// send_message. The fabric emits team.message_sent itself.
func (c *Coordinator) SendMessage(teamName, to string, msg mailbox.ProtocolMessage) error {
	if _, err := c.gate("send_message", teamName); err != nil {
		return err
	}
	return c.fabric.Send(teamName, to, msg)
}

// Broadcast fans a text message out to every member except the sender.
// Gated on send_message. Returns the number of recipients.
func (c *Coordinator) Broadcast(teamName, from, text, summary string) (int, error) {
	if _, err := c.gate("send_message", teamName); err != nil {
		return 0, err
	}
	return c.fabric.Broadcast(teamName, from, text, summary)
}

// CreateTask adds a task to the team. Gated on task_create. When a
// labeler is configured and the task has no activity label, generation is
// queued in the background.
func (c *Coordinator) CreateTask(teamName string, t *team.TeamTask) error {
	if _, err := c.gate("task_create", teamName); err != nil {
		return err
	}
	if err := c.st.CreateTask(teamName, t); err != nil {
		return err
	}
	if c.labels != nil && t.ActiveForm == "" {
		c.labels.Request(teamName, t.ID, t.Subject)
	}
	return nil
}

// UpdateTask applies a patch to a task. Gated on task_update.
func (c *Coordinator) UpdateTask(teamName, id string, patch team.TaskPatch) (*team.TeamTask, error) {
	if _, err := c.gate("task_update", teamName); err != nil {
		return nil, err
	}
	return c.st.UpdateTask(teamName, id, patch)
}

// GetTask reads one task. Gated on task_get.
func (c *Coordinator) GetTask(teamName, id string) (*team.TeamTask, error) {
	if _, err := c.gate("task_get", teamName); err != nil {
		return nil, err
	}
	return c.st.GetTask(teamName, id)
}

// ListTasks reads the team's tasks. Gated on task_list.
func (c *Coordinator) ListTasks(teamName string) ([]*team.TeamTask, error) {
	if _, err := c.gate("task_list", teamName); err != nil {
		return nil, err
	}
	return c.st.ListTasks(teamName)
}

// AdvancePhase moves the team one step forward in its lifecycle, persists
// the new config, and emits team.phase_transition.
func (c *Coordinator) AdvancePhase(teamName string, next phase.Phase) (*team.TeamConfig, error) {
	cfg, err := c.requireTeam(teamName)
	if err != nil {
		return nil, err
	}
	updated, err := team.TransitionPhase(cfg, next)
	if err != nil {
		return nil, err
	}
	if err := c.st.SaveTeamConfig(teamName, updated); err != nil {
		return nil, err
	}
	c.emitter.EmitPhaseTransition(teamName, cfg.Phase.String(), next.String())
	c.logger.Info("phase advanced",
		"team", teamName,
		"from", cfg.Phase.String(),
		"to", next.String())
	return updated, nil
}

// SpawnAgent adds a member to the team and emits team.agent_spawned.
// Gated on spawn_agents.
func (c *Coordinator) SpawnAgent(teamName string, m team.TeamMember) error {
	if _, err := c.gate("spawn_agents", teamName); err != nil {
		return err
	}
	if err := c.st.AddTeamMember(teamName, m); err != nil {
		return err
	}
	c.emitter.EmitAgentSpawned(teamName, m.Name, m.AgentID, m.Role)
	return nil
}

// SpawnAgents adds members in order, stopping at the first failure.
func (c *Coordinator) SpawnAgents(teamName string, members []team.TeamMember) error {
	for _, m := range members {
		if err := c.SpawnAgent(teamName, m); err != nil {
			return err
		}
	}
	return nil
}

// NotifyIdle marks the member idle, sends an idle_notification to the
// team lead, and emits team.teammate_idle.
func (c *Coordinator) NotifyIdle(teamName, agentName, summary, completedTaskID string) error {
	cfg, err := c.requireTeam(teamName)
	if err != nil {
		return err
	}

	if m := cfg.FindMemberByName(agentName); m != nil {
		patch := team.MemberPatch{
			Status:        team.Ptr(team.StatusIdle),
			CurrentTaskID: team.Ptr(""),
		}
		if _, err := c.st.UpdateTeamMember(teamName, m.AgentID, patch); err != nil {
			return err
		}
	}

	lead := leadName(cfg)
	if lead != agentName {
		msg := mailbox.NewIdleNotification(agentName, summary, completedTaskID)
		if err := c.fabric.Send(teamName, lead, msg); err != nil {
			return err
		}
	}

	c.emitter.EmitTeammateIdle(teamName, agentName, summary, completedTaskID)
	return nil
}

// CompleteTask marks the task completed, clears it from other tasks'
// blockedBy lists (flipping fully unblocked tasks back to pending),
// notifies the team lead, and emits team.task_completed. Gated on
// task_update. Returns the completed task and the ids of tasks the
// completion unblocked.
func (c *Coordinator) CompleteTask(teamName, taskID, completedBy string) (*team.TeamTask, []string, error) {
	cfg, err := c.gate("task_update", teamName)
	if err != nil {
		return nil, nil, err
	}

	done, err := c.st.UpdateTask(teamName, taskID, team.TaskPatch{
		Status: team.Ptr(team.TaskCompleted),
	})
	if err != nil {
		return nil, nil, err
	}

	unblocked, err := c.clearDependency(teamName, taskID)
	if err != nil {
		return nil, nil, err
	}

	lead := leadName(cfg)
	if lead != completedBy {
		msg := mailbox.NewTaskCompletedMessage(completedBy, done.ID, done.Subject)
		if err := c.fabric.Send(teamName, lead, msg); err != nil {
			return nil, nil, err
		}
	}

	c.emitter.EmitTaskCompleted(teamName, done.ID, done.Subject, completedBy)
	return done, unblocked, nil
}

// clearDependency removes doneID from every task's blockedBy list. A task
// whose list empties flips from blocked back to pending; its id is
// returned as newly unblocked.
func (c *Coordinator) clearDependency(teamName, doneID string) ([]string, error) {
	tasks, err := c.st.ListTasks(teamName)
	if err != nil {
		return nil, err
	}

	var unblocked []string
	for _, t := range tasks {
		if !slices.Contains(t.BlockedBy, doneID) {
			continue
		}
		remaining := slices.DeleteFunc(slices.Clone(t.BlockedBy), func(id string) bool {
			return id == doneID
		})
		patch := team.TaskPatch{BlockedBy: &remaining}
		if len(remaining) == 0 && t.Status == team.TaskBlocked {
			patch.Status = team.Ptr(team.TaskPending)
		}
		if _, err := c.st.UpdateTask(teamName, t.ID, patch); err != nil {
			return nil, err
		}
		if len(remaining) == 0 {
			unblocked = append(unblocked, t.ID)
		}
	}
	return unblocked, nil
}

// leadName returns the lead member's name, or the conventional fallback
// when the lead holds no membership record.
func leadName(cfg *team.TeamConfig) string {
	if lead := cfg.LeadMember(); lead != nil {
		return lead.Name
	}
	return discovery.DefaultAgentName
}
