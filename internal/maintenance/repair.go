package maintenance

import (
	"encoding/json"
	"os"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/phase"
	"github.com/levelcode/teamfabric/internal/team"
)

// RepairTeamConfig rebuilds a team config that is missing or fails schema
// validation. The rebuilt config keeps whatever partial fields still parse
// from the on-disk file, salvages members whose records can be made valid
// (role remapping, defaulted status), and takes its phase from the most
// recently updated task that names one. The result is persisted and
// returned. A healthy config is returned untouched.
func (e *Engine) RepairTeamConfig(teamName string) (*team.TeamConfig, error) {
	cfg, err := e.store.LoadTeamConfig(teamName)
	if cfg != nil {
		return cfg, nil
	}
	if err != nil && !errors.IsCorrupted(err) {
		return nil, err
	}

	// A name with no trace on disk is not a repair target.
	teamDir, derr := e.store.TeamDir(teamName)
	if derr != nil {
		return nil, derr
	}
	tasksDir, derr := e.store.TeamTasksDir(teamName)
	if derr != nil {
		return nil, derr
	}
	if !dirExists(teamDir) && !dirExists(tasksDir) {
		return nil, errors.NewTeamNotFoundError(teamName)
	}

	rebuilt := e.rebuildConfig(teamName)
	if err := e.store.SaveTeamConfig(teamName, rebuilt); err != nil {
		return nil, err
	}
	e.logger.Warn("rebuilt team config",
		"team", teamName,
		"phase", rebuilt.Phase.String(),
		"members", len(rebuilt.Members))
	return rebuilt, nil
}

func (e *Engine) rebuildConfig(teamName string) *team.TeamConfig {
	cfg := team.NewTeamConfig(teamName, "", "")

	if partial := e.partialConfig(teamName); partial != nil {
		cfg.Description = partial.Description
		cfg.LeadAgentID = partial.LeadAgentID
		if partial.CreatedAt > 0 {
			cfg.CreatedAt = partial.CreatedAt
		}
		cfg.Settings = partial.Settings
		cfg.Members = salvageMembers(partial.Members)
		if partial.Phase.IsValid() {
			cfg.Phase = partial.Phase
		}
	}

	if p, ok := e.latestTaskPhase(teamName); ok {
		cfg.Phase = p
	}

	// Salvaged members win over a stale cap: dropping members would strand
	// their inboxes.
	if cfg.Settings.MaxMembers > 0 && len(cfg.Members) > cfg.Settings.MaxMembers {
		cfg.Settings.MaxMembers = 0
	}
	return cfg
}

// partialConfig returns whatever the on-disk config file still parses to,
// or nil when the file is missing or not JSON at all.
func (e *Engine) partialConfig(teamName string) *team.TeamConfig {
	path, err := e.store.ConfigPath(teamName)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var partial team.TeamConfig
	if err := json.Unmarshal(data, &partial); err != nil {
		return nil
	}
	return &partial
}

// latestTaskPhase returns the phase recorded on the most recently updated
// task, when any task names a valid one.
func (e *Engine) latestTaskPhase(teamName string) (phase.Phase, bool) {
	tasks, err := e.store.ListTasks(teamName)
	if err != nil {
		return "", false
	}
	var (
		best   phase.Phase
		bestAt int64
		found  bool
	)
	for _, t := range tasks {
		p := phase.Phase(t.Phase)
		if !p.IsValid() {
			continue
		}
		if !found || t.UpdatedAt > bestAt {
			best, bestAt, found = p, t.UpdatedAt, true
		}
	}
	return best, found
}

// salvageMembers keeps every member record that can be made valid: unknown
// roles are remapped the same way config auto-repair does, an invalid status
// becomes active, and a missing joinedAt is stamped now. Records that still
// fail validation, or that duplicate an earlier agentId or name, are dropped.
func salvageMembers(members []team.TeamMember) []team.TeamMember {
	kept := make([]team.TeamMember, 0, len(members))
	seenIDs := make(map[string]bool, len(members))
	seenNames := make(map[string]bool, len(members))
	for _, m := range members {
		m.Role = team.RepairRole(m.Role)
		if !m.Status.IsValid() {
			m.Status = team.StatusActive
		}
		if m.JoinedAt == 0 {
			m.JoinedAt = team.NowMillis()
		}
		if m.Validate() != nil || seenIDs[m.AgentID] || seenNames[m.Name] {
			continue
		}
		seenIDs[m.AgentID] = true
		seenNames[m.Name] = true
		kept = append(kept, m)
	}
	return kept
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
