package maintenance

import (
	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/phase"
	"github.com/levelcode/teamfabric/internal/team"
)

// TeamStats is a point-in-time aggregate of a team's shape.
type TeamStats struct {
	Team            string                    `json:"team"`
	Phase           phase.Phase               `json:"phase"`
	UptimeMillis    int64                     `json:"uptimeMillis"`
	MemberCount     int                       `json:"memberCount"`
	TaskCount       int                       `json:"taskCount"`
	TasksByStatus   map[team.TaskStatus]int   `json:"tasksByStatus"`
	MembersByStatus map[team.MemberStatus]int `json:"membersByStatus"`
}

// Stats aggregates task and member counts for a team. Tasks that fail to
// parse are excluded; the integrity checker reports those separately.
func (e *Engine) Stats(teamName string) (*TeamStats, error) {
	cfg, err := e.store.LoadTeamConfig(teamName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.NewTeamNotFoundError(teamName)
	}

	tasks, err := e.store.ListTasks(teamName)
	if err != nil {
		return nil, err
	}

	stats := &TeamStats{
		Team:            cfg.Name,
		Phase:           cfg.Phase,
		UptimeMillis:    team.NowMillis() - cfg.CreatedAt,
		MemberCount:     len(cfg.Members),
		TaskCount:       len(tasks),
		TasksByStatus:   make(map[team.TaskStatus]int),
		MembersByStatus: make(map[team.MemberStatus]int),
	}
	for _, t := range tasks {
		stats.TasksByStatus[t.Status]++
	}
	for _, m := range cfg.Members {
		stats.MembersByStatus[m.Status]++
	}
	return stats, nil
}
